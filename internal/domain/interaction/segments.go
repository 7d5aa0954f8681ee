package interaction

import (
	"sort"

	"github.com/alem-hub/flow-engine/internal/domain/content"
)

// MergeSegments объединяет пересекающиеся и смежные интервалы.
// Результат отсортирован по началу и не зависит от порядка входа.
func MergeSegments(segments ...[]content.Segment) []content.Segment {
	var all []content.Segment
	for _, s := range segments {
		for _, seg := range s {
			if seg.End > seg.Start {
				all = append(all, seg)
			}
		}
	}
	if len(all) == 0 {
		return nil
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].Start == all[j].Start {
			return all[i].End < all[j].End
		}
		return all[i].Start < all[j].Start
	})

	merged := []content.Segment{all[0]}
	for _, seg := range all[1:] {
		last := &merged[len(merged)-1]
		if seg.Start <= last.End {
			if seg.End > last.End {
				last.End = seg.End
			}
			continue
		}
		merged = append(merged, seg)
	}
	return merged
}

// TotalLength суммирует длины интервалов.
func TotalLength(segments []content.Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Length()
	}
	return total
}

// WatchPercentage - доля просмотренного, не больше 100.
func WatchPercentage(watched []content.Segment, duration float64) float64 {
	if duration <= 0 {
		return 0
	}
	return clamp(TotalLength(watched)/duration*100, 0, 100)
}

// Overlap возвращает длину пересечения двух интервалов. Пересечение
// учитывается, только если max(start) < min(end).
func Overlap(a, b content.Segment) float64 {
	start := max(a.Start, b.Start)
	end := min(a.End, b.End)
	if start < end {
		return end - start
	}
	return 0
}

// RequiredCoverage - процент обязательных интервалов, покрытых просмотром.
// Без обязательных интервалов покрытие считается полным.
func RequiredCoverage(watched, required []content.Segment) float64 {
	req := MergeSegments(required)
	total := TotalLength(req)
	if total == 0 {
		return 100
	}
	w := MergeSegments(watched)
	var covered float64
	for _, r := range req {
		for _, s := range w {
			covered += Overlap(r, s)
		}
	}
	return clamp(covered/total*100, 0, 100)
}

// Furthest возвращает самую дальнюю просмотренную точку.
func Furthest(watched []content.Segment) float64 {
	var f float64
	for _, s := range watched {
		if s.End > f {
			f = s.End
		}
	}
	return f
}

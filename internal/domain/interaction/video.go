package interaction

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/alem-hub/flow-engine/internal/domain/content"
	"github.com/alem-hub/flow-engine/internal/domain/progress"
	"github.com/alem-hub/flow-engine/internal/domain/shared"
)

// Действия над видео.
const (
	ActionStartVideo          Action = "START_VIDEO"
	ActionUpdateWatchProgress Action = "UPDATE_WATCH_PROGRESS"
	ActionSeek                Action = "SEEK"
	ActionChangePlaybackRate  Action = "CHANGE_PLAYBACK_RATE"
	ActionCompleteVideo       Action = "COMPLETE_VIDEO"
)

// VideoProgressData - накопитель просмотренных интервалов.
type VideoProgressData struct {
	WatchedSegments  []content.Segment `json:"watchedSegments,omitempty"`
	TotalWatchTime   float64           `json:"totalWatchTime"`
	WatchPercentage  float64           `json:"watchPercentage"`
	RequiredCoverage float64           `json:"requiredCoverage"`
	LastPosition     float64           `json:"lastPosition"`
	PlaybackRate     float64           `json:"playbackRate,omitempty"`
	Duration         float64           `json:"duration,omitempty"`
}

// VideoActionData - данные действий над видео.
type VideoActionData struct {
	WatchedSegments []content.Segment `json:"watchedSegments,omitempty" validate:"dive"`
	CurrentTime     *float64          `json:"currentTime,omitempty" validate:"omitempty,gte=0"`
	PlaybackRate    *float64          `json:"playbackRate,omitempty" validate:"omitempty,gt=0"`
	Duration        *float64          `json:"duration,omitempty" validate:"omitempty,gt=0"`
	From            *float64          `json:"from,omitempty" validate:"omitempty,gte=0"`
	To              *float64          `json:"to,omitempty" validate:"omitempty,gte=0"`
}

// VideoHandler обрабатывает видео.
type VideoHandler struct {
	rules VideoRules
}

// NewVideoHandler создаёт обработчик видео.
func NewVideoHandler(rules VideoRules) *VideoHandler {
	return &VideoHandler{rules: rules}
}

// Type implements Handler.
func (h *VideoHandler) Type() content.Type { return content.TypeVideo }

// SupportedActions implements Handler.
func (h *VideoHandler) SupportedActions() []Action {
	return []Action{ActionStartVideo, ActionUpdateWatchProgress, ActionSeek, ActionChangePlaybackRate, ActionCompleteVideo}
}

// ValidateSchema implements Handler.
func (h *VideoHandler) ValidateSchema(data json.RawMessage) ValidationResult {
	v, errs := decodeAction[content.VideoData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	errs = content.ValidateStruct(v)
	if v.Duration > 0 {
		for _, s := range v.RequiredSegments {
			if s.End > v.Duration {
				errs = append(errs, "required segment exceeds video duration")
				break
			}
		}
	}
	return fromErrors(errs)
}

// ValidateActionData implements Handler.
func (h *VideoHandler) ValidateActionData(action Action, data json.RawMessage) ValidationResult {
	d, errs := decodeAction[VideoActionData](data)
	if errs != nil {
		return Invalid(errs...)
	}
	errs = content.ValidateStruct(d)
	switch action {
	case ActionUpdateWatchProgress:
		if len(d.WatchedSegments) == 0 && d.CurrentTime == nil {
			errs = append(errs, "watchedSegments or currentTime is required")
		}
	case ActionSeek:
		if d.To == nil {
			errs = append(errs, "to is required")
		}
	case ActionChangePlaybackRate:
		if d.PlaybackRate == nil {
			errs = append(errs, "playbackRate is required")
		}
	}
	return fromErrors(errs)
}

type videoState struct {
	video  content.VideoData
	prev   VideoProgressData
	action VideoActionData
}

func (h *VideoHandler) decode(ic *Context) (videoState, error) {
	var st videoState
	var err error
	if st.video, err = content.Decode[content.VideoData](ic.Component.Data); err != nil {
		return st, err
	}
	if st.prev, err = content.Decode[VideoProgressData](ic.Progress.ProgressData); err != nil {
		return st, err
	}
	st.action, err = content.Decode[VideoActionData](ic.Data)
	return st, err
}

func (h *VideoHandler) maxRate(v content.VideoData) float64 {
	if v.MaxPlaybackRate > 0 {
		return v.MaxPlaybackRate
	}
	return h.rules.DefaultMaxPlaybackRate
}

func (h *VideoHandler) minWatch(v content.VideoData) float64 {
	if v.MinWatchPercentage > 0 {
		return v.MinWatchPercentage
	}
	return h.rules.DefaultMinWatchPercentage
}

// duration: длительность из схемы, иначе из данных действия, иначе накопленная.
func (st videoState) duration() float64 {
	switch {
	case st.video.Duration > 0:
		return st.video.Duration
	case st.action.Duration != nil:
		return *st.action.Duration
	default:
		return st.prev.Duration
	}
}

// ValidateBusinessRules implements Handler. Нарушения скорости и перемотки
// отклоняются до изменения прогресса.
func (h *VideoHandler) ValidateBusinessRules(ic *Context) error {
	st, err := h.decode(ic)
	if err != nil {
		return err
	}
	if rate := st.action.PlaybackRate; rate != nil && *rate > h.maxRate(st.video) {
		return ruleError("PlaybackRate", shared.ErrValidation, "playback rate %.2fx exceeds maximum %.2fx", *rate, h.maxRate(st.video))
	}
	if !st.video.SeekForwardAllowed() {
		if err := h.checkForward(ic.Action, st); err != nil {
			return err
		}
	}
	if ic.Action == ActionCompleteVideo && ic.Progress.Status != progress.ComponentCompleted {
		done, err := h.IsCompleted(ic)
		if err != nil {
			return err
		}
		if !done {
			return ruleError("CompleteVideo", shared.ErrValidation, "completion criteria are not met")
		}
	}
	return nil
}

// checkForward отклоняет перемотку вперёд: SEEK и currentTime не дальше
// просмотренного, каждый новый интервал начинается не дальше уже достигнутой точки.
func (h *VideoHandler) checkForward(action Action, st videoState) error {
	reached := math.Max(Furthest(st.prev.WatchedSegments), st.prev.LastPosition)
	tol := h.rules.SeekTolerance

	if action == ActionSeek {
		if st.action.To != nil && *st.action.To > reached+tol {
			return ruleError("Seek", shared.ErrValidation, "seeking forward past %.1fs is not allowed", reached+tol)
		}
		return nil
	}

	if action == ActionUpdateWatchProgress {
		segs := append([]content.Segment(nil), st.action.WatchedSegments...)
		sort.Slice(segs, func(i, j int) bool { return segs[i].Start < segs[j].Start })
		for _, s := range segs {
			if s.Start > reached+tol {
				return ruleError("UpdateWatchProgress", shared.ErrValidation,
					"segment starting at %.1fs skips ahead of %.1fs", s.Start, reached+tol)
			}
			reached = math.Max(reached, s.End)
		}
	}
	if ct := st.action.CurrentTime; ct != nil && *ct > reached+tol {
		return ruleError("UpdateWatchProgress", shared.ErrValidation, "current time %.1fs is past %.1fs", *ct, reached+tol)
	}
	return nil
}

// next вычисляет накопитель после действия.
func (h *VideoHandler) next(ic *Context) (videoState, VideoProgressData, error) {
	st, err := h.decode(ic)
	if err != nil {
		return st, VideoProgressData{}, err
	}
	data := st.prev
	data.Duration = st.duration()

	if ic.Action == ActionUpdateWatchProgress {
		segs := st.action.WatchedSegments
		if data.Duration > 0 {
			segs = clipSegments(segs, data.Duration)
		}
		data.WatchedSegments = MergeSegments(data.WatchedSegments, segs)
	}
	if st.action.CurrentTime != nil {
		data.LastPosition = *st.action.CurrentTime
	}
	if ic.Action == ActionSeek && st.action.To != nil {
		data.LastPosition = *st.action.To
	}
	if st.action.PlaybackRate != nil {
		data.PlaybackRate = *st.action.PlaybackRate
	}

	data.TotalWatchTime = TotalLength(data.WatchedSegments)
	data.WatchPercentage = WatchPercentage(data.WatchedSegments, data.Duration)
	data.RequiredCoverage = RequiredCoverage(data.WatchedSegments, st.video.RequiredSegments)
	return st, data, nil
}

func clipSegments(segs []content.Segment, duration float64) []content.Segment {
	out := make([]content.Segment, 0, len(segs))
	for _, s := range segs {
		if s.Start >= duration {
			continue
		}
		if s.End > duration {
			s.End = duration
		}
		out = append(out, s)
	}
	return out
}

func (h *VideoHandler) criteriaMet(v content.VideoData, data VideoProgressData) bool {
	if v.RequireFullWatch {
		return data.WatchPercentage >= h.rules.FullWatchPercentage
	}
	if data.WatchPercentage < h.minWatch(v) {
		return false
	}
	if len(v.RequiredSegments) > 0 && data.RequiredCoverage < h.rules.RequiredSegmentCoverage {
		return false
	}
	return true
}

// IsCompleted implements Handler.
func (h *VideoHandler) IsCompleted(ic *Context) (bool, error) {
	if ic.Progress.Status == progress.ComponentCompleted {
		return true, nil
	}
	st, data, err := h.next(ic)
	if err != nil {
		return false, err
	}
	return h.criteriaMet(st.video, data), nil
}

// CalculateProgress implements Handler: процент просмотра, 100 при завершении.
func (h *VideoHandler) CalculateProgress(ic *Context) (float64, error) {
	done, err := h.IsCompleted(ic)
	if err != nil {
		return 0, err
	}
	if done {
		return 100, nil
	}
	_, data, err := h.next(ic)
	if err != nil {
		return 0, err
	}
	return data.WatchPercentage, nil
}

// ProcessAction implements Handler.
func (h *VideoHandler) ProcessAction(ic *Context) (*Result, error) {
	st, data, err := h.next(ic)
	if err != nil {
		return nil, err
	}

	res := &Result{
		NewStatus:  progress.ComponentInProgress,
		Progress:   data.WatchPercentage,
		Percentage: ptr(data.WatchPercentage),
	}
	if ic.Progress.Status == progress.ComponentCompleted || h.criteriaMet(st.video, data) {
		res.NewStatus = progress.ComponentCompleted
		res.Progress = 100
		res.CompletedAt = ic.Progress.CompletedAt
		if res.CompletedAt == nil {
			res.CompletedAt = ptr(ic.Now)
		}
	}

	if res.ProgressData, err = encode(data); err != nil {
		return nil, err
	}
	return res, nil
}

package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/alem-hub/flow-engine/internal/domain/content"
)

func TestMergeSegments(t *testing.T) {
	tests := []struct {
		name string
		in   [][]content.Segment
		want []content.Segment
	}{
		{"empty", nil, nil},
		{
			"bridging segment joins both",
			[][]content.Segment{{{Start: 0, End: 10}, {Start: 20, End: 30}}, {{Start: 5, End: 25}}},
			[]content.Segment{{Start: 0, End: 30}},
		},
		{
			"adjacent segments merge",
			[][]content.Segment{{{Start: 10, End: 20}, {Start: 0, End: 10}}},
			[]content.Segment{{Start: 0, End: 20}},
		},
		{
			"disjoint stay apart and sorted",
			[][]content.Segment{{{Start: 40, End: 50}, {Start: 0, End: 5}}},
			[]content.Segment{{Start: 0, End: 5}, {Start: 40, End: 50}},
		},
		{
			"zero length dropped",
			[][]content.Segment{{{Start: 3, End: 3}}},
			nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeSegments(tt.in...))
		})
	}
}

func TestMergeSegmentsOrderIndependent(t *testing.T) {
	a := []content.Segment{{Start: 0, End: 10}, {Start: 20, End: 30}}
	b := []content.Segment{{Start: 5, End: 25}}
	assert.Equal(t, MergeSegments(a, b), MergeSegments(b, a))
}

func TestWatchPercentage(t *testing.T) {
	merged := MergeSegments([]content.Segment{{Start: 0, End: 10}, {Start: 20, End: 30}}, []content.Segment{{Start: 5, End: 25}})
	assert.Equal(t, 100.0, WatchPercentage(merged, 30))
	assert.Equal(t, 50.0, WatchPercentage([]content.Segment{{Start: 0, End: 15}}, 30))
	assert.Zero(t, WatchPercentage(merged, 0))
	assert.Equal(t, 100.0, WatchPercentage([]content.Segment{{Start: 0, End: 60}}, 30))
}

func TestOverlap(t *testing.T) {
	assert.Equal(t, 5.0, Overlap(content.Segment{Start: 0, End: 10}, content.Segment{Start: 5, End: 20}))
	assert.Zero(t, Overlap(content.Segment{Start: 0, End: 10}, content.Segment{Start: 10, End: 20}))
}

func TestRequiredCoverage(t *testing.T) {
	required := []content.Segment{{Start: 10, End: 20}, {Start: 30, End: 40}}
	assert.Equal(t, 100.0, RequiredCoverage(nil, nil))
	assert.Equal(t, 50.0, RequiredCoverage([]content.Segment{{Start: 0, End: 20}}, required))
	assert.Equal(t, 100.0, RequiredCoverage([]content.Segment{{Start: 0, End: 50}}, required))
}

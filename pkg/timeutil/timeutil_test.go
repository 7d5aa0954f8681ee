package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAddBusinessDays(t *testing.T) {
	// 2025-01-06 is a Monday.
	monday := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		from time.Time
		n    int
		want time.Time
	}{
		{"zero days", monday, 0, monday},
		{"within week", monday, 3, time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC)},
		{"crosses weekend", monday, 5, time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)},
		{"seven business days", monday, 7, time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)},
		{"from friday", time.Date(2025, 1, 10, 10, 0, 0, 0, time.UTC), 1, time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)},
		{"from saturday", time.Date(2025, 1, 11, 10, 0, 0, 0, time.UTC), 1, time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AddBusinessDays(tt.from, tt.n)
			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
		})
	}
}

func TestAddBusinessDays_PreservesLocation(t *testing.T) {
	from := time.Date(2025, 1, 6, 5, 0, 0, 0, time.UTC)
	got := AddBusinessDays(from, 1)
	assert.Equal(t, time.UTC, got.Location())
	assert.True(t, got.After(from))
}

func TestAddBusinessDays_WeekendInOwnLocation(t *testing.T) {
	// Friday 20:00 UTC is already Saturday 01:00 in UTC+5.
	plus5 := time.FixedZone("UTC+5", 5*60*60)
	friday := time.Date(2025, 1, 10, 20, 0, 0, 0, time.UTC)

	assert.True(t, time.Date(2025, 1, 13, 20, 0, 0, 0, time.UTC).Equal(AddBusinessDays(friday, 1)))
	assert.True(t, time.Date(2025, 1, 13, 1, 0, 0, 0, plus5).Equal(AddBusinessDays(friday.In(plus5), 1)))
	assert.True(t, IsWeekend(friday.In(plus5)))
	assert.False(t, IsWeekend(friday))
}

func TestCeilDays(t *testing.T) {
	assert.Equal(t, 0, CeilDays(0))
	assert.Equal(t, 0, CeilDays(-time.Hour))
	assert.Equal(t, 1, CeilDays(time.Minute))
	assert.Equal(t, 1, CeilDays(Day))
	assert.Equal(t, 2, CeilDays(Day+time.Second))
	assert.Equal(t, 3, CeilDays(3*Day))
}

func TestFixedClock(t *testing.T) {
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, at, FixedClock(at).Now())
}

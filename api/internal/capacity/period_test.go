package capacity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPeriod(t *testing.T) {
	p, err := NewPeriod(time.Date(2025, 7, 14, 15, 30, 0, 0, time.UTC), day(2025, 8, 3))
	require.NoError(t, err)
	assert.Equal(t, day(2025, 7, 14), p.Start)
	assert.Equal(t, 21, p.Days())
	assert.InDelta(t, 3.0, p.Weeks(), 1e-9)

	_, err = NewPeriod(day(2025, 8, 3), day(2025, 7, 14))
	assert.ErrorIs(t, err, ErrInvalidPeriod)
	_, err = NewPeriod(time.Time{}, day(2025, 7, 14))
	assert.ErrorIs(t, err, ErrInvalidPeriod)
}

func TestMonthPeriod(t *testing.T) {
	p := MonthPeriod(day(2024, 2, 17))
	assert.Equal(t, day(2024, 2, 1), p.Start)
	assert.Equal(t, day(2024, 2, 29), p.End)
	assert.Equal(t, 29, p.Days())
}

func TestOverlapDays(t *testing.T) {
	p := mustPeriod(day(2025, 7, 1), day(2025, 7, 31))
	assert.Equal(t, 0, p.OverlapDays(day(2025, 6, 1), day(2025, 6, 30)))
	assert.Equal(t, 1, p.OverlapDays(day(2025, 6, 1), day(2025, 7, 1)))
	assert.Equal(t, 31, p.OverlapDays(day(2025, 1, 1), day(2025, 12, 31)))
	assert.Equal(t, 4, p.OverlapDays(day(2025, 7, 28), day(2025, 8, 3)))
	assert.True(t, p.Contains(day(2025, 7, 31)))
	assert.False(t, p.Contains(day(2025, 8, 1)))
}

func TestPeriodWeekKeys(t *testing.T) {
	p := mustPeriod(day(2025, 7, 1), day(2025, 7, 31))
	keys := p.WeekKeys()
	require.Len(t, keys, 5)
	assert.Equal(t, wk(2025, 27), keys[0])
	assert.Equal(t, wk(2025, 31), keys[4])

	assert.Equal(t, 21, WeekRange(wk(2025, 29), wk(2025, 31)).Days())
}

func TestWeekPolicyWindow(t *testing.T) {
	july := mustPeriod(day(2025, 7, 1), day(2025, 7, 31))
	w := WeekPolicyOverlap.Window(july)
	assert.Equal(t, day(2025, 6, 30), w.Start)
	assert.Equal(t, day(2025, 8, 3), w.End)
	assert.InDelta(t, float64(len(july.WeekKeys())), w.Weeks(), 1e-9)

	assert.Equal(t, july, WeekPolicyProrate.Window(july))

	aligned := WeekPeriod(wk(2025, 29))
	assert.Equal(t, aligned, WeekPolicyOverlap.Window(aligned))
}

func TestParseWeekPolicy(t *testing.T) {
	p, ok := ParseWeekPolicy("")
	assert.True(t, ok)
	assert.Equal(t, WeekPolicyOverlap, p)

	p, ok = ParseWeekPolicy(" Prorate ")
	assert.True(t, ok)
	assert.Equal(t, WeekPolicyProrate, p)

	_, ok = ParseWeekPolicy("weighted")
	assert.False(t, ok)
}

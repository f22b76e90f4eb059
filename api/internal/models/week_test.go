package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestParseWeekKeyFormats(t *testing.T) {
	want := WeekKey{Year: 2025, Week: 29}
	for _, raw := range []string{"2025-W29", "2025W29", "2025-w29", "2025-29", "2025/29", " 2025-W29 ", "2025-07-14", "2025-07-20"} {
		got, err := ParseWeekKey(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
}

func TestParseWeekKeyRejects(t *testing.T) {
	cases := map[string]error{
		"2025-W00":   ErrInvalidWeekKey,
		"2025-W54":   ErrInvalidWeekKey,
		"2025-W53":   ErrInvalidWeekKey, // 2025 has 52 ISO weeks
		"W29":        ErrAmbiguousWeekKey,
		"29":         ErrAmbiguousWeekKey,
		"july":       ErrInvalidWeekKey,
		"2025-13-40": ErrInvalidWeekKey,
	}
	for raw, wantErr := range cases {
		_, err := ParseWeekKey(raw)
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, wantErr), "%s: %v", raw, err)
	}

	got, err := ParseWeekKey("2020-W53")
	require.NoError(t, err)
	assert.Equal(t, WeekKey{Year: 2020, Week: 53}, got)
}

func TestWeekKeyBounds(t *testing.T) {
	k := WeekKey{Year: 2025, Week: 29}
	assert.Equal(t, date(2025, time.July, 14), k.Start())
	assert.Equal(t, date(2025, time.July, 20), k.End())

	// ISO week 1 of 2026 starts in December 2025.
	assert.Equal(t, date(2025, time.December, 29), WeekKey{Year: 2026, Week: 1}.Start())
	assert.Equal(t, WeekKey{Year: 2026, Week: 1}, WeekOf(date(2025, time.December, 31)))
}

func TestResolveWeekKeyBare(t *testing.T) {
	got, err := ResolveWeekKey("W29", date(2025, time.July, 1), date(2025, time.August, 31))
	require.NoError(t, err)
	assert.Equal(t, WeekKey{Year: 2025, Week: 29}, got)

	got, err = ResolveWeekKey("30", date(2025, time.July, 1), date(2025, time.August, 31))
	require.NoError(t, err)
	assert.Equal(t, WeekKey{Year: 2025, Week: 30}, got)

	_, err = ResolveWeekKey("W29", date(2024, time.January, 1), date(2025, time.December, 31))
	assert.ErrorIs(t, err, ErrAmbiguousWeekKey)

	_, err = ResolveWeekKey("W40", date(2025, time.July, 1), date(2025, time.August, 31))
	assert.ErrorIs(t, err, ErrInvalidWeekKey)

	_, err = ResolveWeekKey("W29", time.Time{}, time.Time{})
	assert.ErrorIs(t, err, ErrAmbiguousWeekKey)
}

func TestNormalizeWeeklyHours(t *testing.T) {
	raw := map[string]float64{
		"2025-W29": 10,
		"2025-29":  5,
		"W30":      16,
		"2025-W31": 40,
		"garbage":  8,
		"2025-W32": -4,
	}
	got, anomalies := NormalizeWeeklyHours(raw, date(2025, time.July, 14), date(2025, time.August, 10))

	assert.Equal(t, WeeklyHours{
		{Year: 2025, Week: 29}: 15,
		{Year: 2025, Week: 30}: 16,
		{Year: 2025, Week: 31}: 40,
	}, got)
	require.Len(t, anomalies, 2)
	assert.Equal(t, "2025-W32", anomalies[0].Key)
	assert.Equal(t, "garbage", anomalies[1].Key)
}

func TestNormalizeWeeklyHoursEmpty(t *testing.T) {
	got, anomalies := NormalizeWeeklyHours(nil, time.Time{}, time.Time{})
	assert.Nil(t, got)
	assert.Nil(t, anomalies)

	got, anomalies = NormalizeWeeklyHours(map[string]float64{"nope": 1}, time.Time{}, time.Time{})
	assert.Nil(t, got)
	assert.Len(t, anomalies, 1)
}

func TestWeeklyHoursKeysOrderedAndJSON(t *testing.T) {
	w := WeeklyHours{
		{Year: 2026, Week: 1}:  8,
		{Year: 2025, Week: 52}: 4,
		{Year: 2025, Week: 3}:  2,
	}
	assert.Equal(t, []WeekKey{{2025, 3}, {2025, 52}, {2026, 1}}, w.Keys())
	assert.InDelta(t, 14, w.Total(), 1e-9)

	b, err := json.Marshal(w)
	require.NoError(t, err)
	assert.JSONEq(t, `{"2025-W03":2,"2025-W52":4,"2026-W01":8}`, string(b))

	var back WeeklyHours
	require.NoError(t, json.Unmarshal(b, &back))
	assert.Equal(t, w, back)
}

func TestAllocationCloneIsDeep(t *testing.T) {
	a := Allocation{Weekly: WeeklyHours{{Year: 2025, Week: 29}: 40}}
	c := a.Clone()
	c.Weekly[WeekKey{Year: 2025, Week: 29}] = 1
	assert.Equal(t, 40.0, a.Weekly[WeekKey{Year: 2025, Week: 29}])
}

func TestProjectPriorityRank(t *testing.T) {
	assert.Less(t, ProjectPriorityLow.Rank(), ProjectPriorityMedium.Rank())
	assert.Less(t, ProjectPriorityMedium.Rank(), ProjectPriorityHigh.Rank())
	assert.Less(t, ProjectPriorityHigh.Rank(), ProjectPriorityCritical.Rank())
	assert.Equal(t, ProjectPriorityMedium.Rank(), ProjectPriority("unknown").Rank())
	assert.Equal(t, 4, ProjectPriority(" CRITICAL ").Rank())
}

package capacity

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-planning-system/api/internal/models"
)

func TestCalculateThresholdExamples(t *testing.T) {
	week := WeekPeriod(wk(2025, 29))
	r := resource("alice", 40)

	cases := []struct {
		allocated float64
		wantPct   int
		wantCat   Category
	}{
		{allocated: 80, wantPct: 200, wantCat: CategoryCritical},
		{allocated: 40, wantPct: 100, wantCat: CategoryNearCapacity},
		{allocated: 34, wantPct: 85, wantCat: CategoryNearCapacity},
		{allocated: 33.6, wantPct: 84, wantCat: CategoryHealthy},
		{allocated: 28, wantPct: 70, wantCat: CategoryHealthy},
		{allocated: 27.6, wantPct: 69, wantCat: CategoryUnderutilized},
		{allocated: 0.4, wantPct: 1, wantCat: CategoryUnderutilized},
		{allocated: 0, wantPct: 0, wantCat: CategoryUnassigned},
	}
	for _, tc := range cases {
		res, err := Calculate(r, tc.allocated, 0, week, DefaultStandardWeeklyHours)
		require.NoError(t, err)
		assert.Equal(t, tc.wantPct, res.UtilizationPct, "allocated=%v", tc.allocated)
		assert.Equal(t, tc.wantCat, Classify(res), "allocated=%v", tc.allocated)
	}
}

func TestCalculateEffectiveCapacity(t *testing.T) {
	r := resource("bob", 40)
	r.NonProjectHoursPerWeek = 4

	period := WeekRange(wk(2025, 29), wk(2025, 31))
	res, err := Calculate(r, 90, 8, period, DefaultStandardWeeklyHours)
	require.NoError(t, err)
	assert.InDelta(t, 120, res.NominalCapacity, 1e-9)
	assert.InDelta(t, 12, res.NonProjectHours, 1e-9)
	assert.InDelta(t, 100, res.EffectiveCapacity, 1e-9)
	assert.InDelta(t, 10, res.AvailableHours, 1e-9)
	assert.Equal(t, 90, res.UtilizationPct)
	assert.False(t, res.Degenerate)
}

func TestCalculateDegenerateCapacity(t *testing.T) {
	r := resource("carol", 40)
	week := WeekPeriod(wk(2025, 29))

	res, err := Calculate(r, 10, 40, week, DefaultStandardWeeklyHours)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, 0, res.UtilizationPct)
	assert.Equal(t, CategoryCritical, Classify(res))

	res, err = Calculate(r, 0, 60, week, DefaultStandardWeeklyHours)
	require.NoError(t, err)
	assert.True(t, res.Degenerate)
	assert.Equal(t, CategoryUnassigned, Classify(res))
	assert.Zero(t, res.Spare())
}

func TestCalculateMissingCapacityFallsBack(t *testing.T) {
	r := resource("dave", 0)
	res, err := Calculate(r, 20, 0, WeekPeriod(wk(2025, 29)), 0)
	require.NoError(t, err)
	assert.True(t, res.CapacityFallback)
	assert.InDelta(t, DefaultStandardWeeklyHours, res.EffectiveCapacity, 1e-9)
	assert.Equal(t, 50, res.UtilizationPct)

	r.WeeklyCapacity = math.NaN()
	res, err = Calculate(r, 20, 0, WeekPeriod(wk(2025, 29)), 32)
	require.NoError(t, err)
	assert.True(t, res.CapacityFallback)
	assert.InDelta(t, 32, res.EffectiveCapacity, 1e-9)
}

func TestCalculateRejectsNonFiniteInput(t *testing.T) {
	r := resource("erin", 40)
	_, err := Calculate(r, math.NaN(), 0, WeekPeriod(wk(2025, 29)), 40)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Calculate(r, 10, math.Inf(1), WeekPeriod(wk(2025, 29)), 40)
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = Calculate(r, -1, 0, WeekPeriod(wk(2025, 29)), 40)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestCalculateIsDeterministic(t *testing.T) {
	r := resource("frank", 37.5)
	period := mustPeriod(day(2025, 3, 3), day(2025, 5, 17))
	first, err := Calculate(r, 301.7, 15.25, period, 40)
	require.NoError(t, err)
	for i := 0; i < 100; i++ {
		again, err := Calculate(r, 301.7, 15.25, period, 40)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestTimeOffHoursProrated(t *testing.T) {
	r := resource("gina", 40)
	entries := []models.TimeOff{
		{ResourceID: r.ID, StartDate: day(2025, 7, 14), EndDate: day(2025, 7, 18), Hours: 40},
		// 10 days, 3 of them in W29.
		{ResourceID: r.ID, StartDate: day(2025, 7, 18), EndDate: day(2025, 7, 27), Hours: 20},
		{ResourceID: id("someone-else"), StartDate: day(2025, 7, 14), EndDate: day(2025, 7, 18), Hours: 40},
		{ResourceID: r.ID, StartDate: day(2025, 7, 18), EndDate: day(2025, 7, 14), Hours: 8},
	}
	assert.InDelta(t, 46, TimeOffHours(entries, r.ID, WeekPeriod(wk(2025, 29))), 1e-9)
}

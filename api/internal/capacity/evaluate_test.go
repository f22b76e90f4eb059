package capacity

import (
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-planning-system/api/internal/models"
)

func TestEvaluateWeeklyScenario(t *testing.T) {
	alice := resource("alice", 40)
	a := weeklyAllocation("a1", alice, id("p1"), map[models.WeekKey]float64{
		wk(2025, 29): 40,
		wk(2025, 30): 16,
		wk(2025, 31): 40,
	})
	snap := Snapshot{Resources: []models.Resource{alice}, Allocations: []models.Allocation{a}}

	snap.Period = WeekRange(wk(2025, 29), wk(2025, 31))
	ev := Evaluate(snap, DefaultOptions())
	r, ok := ev.Result(alice.ID)
	require.True(t, ok)
	assert.InDelta(t, 96, r.AllocatedHours, 1e-9)
	assert.InDelta(t, 120, r.EffectiveCapacity, 1e-9)
	assert.Equal(t, 80, r.UtilizationPct)
	cat, _ := ev.CategoryOf(alice.ID)
	assert.Equal(t, CategoryHealthy, cat)
	assert.Zero(t, ev.Summary.TotalAlerts)

	snap.Period = WeekPeriod(wk(2025, 29))
	ev = Evaluate(snap, DefaultOptions())
	r, _ = ev.Result(alice.ID)
	assert.InDelta(t, 40, r.AllocatedHours, 1e-9)
	assert.Equal(t, 100, r.UtilizationPct)
	cat, _ = ev.CategoryOf(alice.ID)
	assert.Equal(t, CategoryNearCapacity, cat)
	assert.Equal(t, 1, ev.Summary.WarningCount)
}

func TestEvaluateMonthBookedAtCapacity(t *testing.T) {
	hana := resource("hana", 40)
	hours := map[models.WeekKey]float64{}
	for w := 27; w <= 31; w++ {
		hours[wk(2025, w)] = 40
	}
	snap := Snapshot{
		Period:      MonthPeriod(day(2025, 7, 1)), // Tuesday to Thursday
		Resources:   []models.Resource{hana},
		Allocations: []models.Allocation{weeklyAllocation("h1", hana, id("p1"), hours)},
	}

	ev := Evaluate(snap, DefaultOptions())
	assert.Equal(t, mustPeriod(day(2025, 6, 30), day(2025, 8, 3)), ev.Window)
	r, ok := ev.Result(hana.ID)
	require.True(t, ok)
	assert.InDelta(t, 200, r.AllocatedHours, 1e-9)
	assert.InDelta(t, 200, r.EffectiveCapacity, 1e-9)
	assert.Equal(t, 100, r.UtilizationPct)
	cat, _ := ev.CategoryOf(hana.ID)
	assert.Equal(t, CategoryNearCapacity, cat)

	opts := DefaultOptions()
	opts.Policy = WeekPolicyProrate
	ev = Evaluate(snap, opts)
	assert.Equal(t, snap.Period, ev.Window)
	r, _ = ev.Result(hana.ID)
	assert.InDelta(t, 40*31.0/7, r.AllocatedHours, 1e-9)
	assert.InDelta(t, 40*31.0/7, r.EffectiveCapacity, 1e-9)
	assert.Equal(t, 100, r.UtilizationPct)
}

func TestEvaluateOverlapCountsTimeOffAcrossWholeWeeks(t *testing.T) {
	ivan := resource("ivan", 40)
	snap := Snapshot{
		Period:    MonthPeriod(day(2025, 7, 1)),
		Resources: []models.Resource{ivan},
		Allocations: []models.Allocation{
			weeklyAllocation("i1", ivan, id("p1"), map[models.WeekKey]float64{wk(2025, 31): 16}),
		},
		// Friday August 1 sits in W31, which July touches.
		TimeOff: []models.TimeOff{{ResourceID: ivan.ID, StartDate: day(2025, 8, 1), EndDate: day(2025, 8, 1), Hours: 8}},
	}
	r, _ := Evaluate(snap, DefaultOptions()).Result(ivan.ID)
	assert.InDelta(t, 8, r.TimeOffHours, 1e-9)
	assert.InDelta(t, 192, r.EffectiveCapacity, 1e-9)
}

func TestEvaluateZeroHoursAreUnassigned(t *testing.T) {
	snap := Snapshot{
		Period:    MonthPeriod(day(2025, 7, 1)),
		Resources: []models.Resource{resource("x", 40), resource("y", 32), resource("z", 0)},
	}
	ev := Evaluate(snap, DefaultOptions())
	unassigned := ev.Bucket(CategoryUnassigned)
	assert.Equal(t, 3, unassigned.Count)
	for _, r := range unassigned.Resources {
		assert.Equal(t, 0, r.UtilizationPct)
	}
	assert.Equal(t, []uuid.UUID{id("z")}, ev.Fallbacks)
}

func TestEvaluateSkipsInactiveAndIsolatesFailures(t *testing.T) {
	active := resource("active", 40)
	inactive := resource("inactive", 40)
	inactive.Active = false
	broken := resource("broken", 40)
	broken.NonProjectHoursPerWeek = math.Inf(1)

	snap := Snapshot{
		Period:    WeekPeriod(wk(2025, 29)),
		Resources: []models.Resource{active, inactive, broken},
		Allocations: []models.Allocation{
			weeklyAllocation("a", active, id("p"), map[models.WeekKey]float64{wk(2025, 29): 20}),
			weeklyAllocation("i", inactive, id("p"), map[models.WeekKey]float64{wk(2025, 29): 80}),
		},
	}
	ev := Evaluate(snap, DefaultOptions())
	require.Len(t, ev.Results, 1)
	assert.Equal(t, active.ID, ev.Results[0].ResourceID)
	require.Len(t, ev.Excluded, 1)
	assert.Equal(t, broken.ID, ev.Excluded[0].ResourceID)
	_, ok := ev.CategoryOf(inactive.ID)
	assert.False(t, ok)
}

// Each active resource is categorized, healthy or excluded, exactly once.
func TestEvaluateAccountsForEveryActiveResource(t *testing.T) {
	var resources []models.Resource
	var allocs []models.Allocation
	for i := 0; i < 40; i++ {
		r := resource(uuid.NewSHA1(uuid.NameSpaceDNS, []byte{byte(i)}).String(), float64(20+i%4*10))
		r.Active = i%7 != 0
		resources = append(resources, r)
		allocs = append(allocs, flatAllocation(r.Name+"-a", r, id("p"), day(2025, 7, 1), day(2025, 7, 31), float64(i*9)))
	}
	ev := Evaluate(Snapshot{Period: MonthPeriod(day(2025, 7, 1)), Resources: resources, Allocations: allocs}, DefaultOptions())

	placed := len(ev.Healthy) + len(ev.Excluded)
	for _, c := range ev.Categories {
		placed += c.Count
	}
	active := 0
	for _, r := range resources {
		if r.Active {
			active++
			_, ok := ev.CategoryOf(r.ID)
			assert.True(t, ok, r.Name)
		}
	}
	assert.Equal(t, active, placed)
	assert.Equal(t, active, len(ev.Results))
}

func TestComputeKPIs(t *testing.T) {
	w := wk(2025, 29)
	over := resource("over", 40)
	light := resource("light", 40)
	fine := resource("fine", 40)
	zero := resource("zero", 40)
	zero.NonProjectHoursPerWeek = 40

	snap := Snapshot{
		Period:    WeekPeriod(w),
		Resources: []models.Resource{over, light, fine, zero},
		Allocations: []models.Allocation{
			weeklyAllocation("o", over, id("p"), map[models.WeekKey]float64{w: 60}),
			weeklyAllocation("l", light, id("p"), map[models.WeekKey]float64{w: 10}),
			weeklyAllocation("f", fine, id("p"), map[models.WeekKey]float64{w: 30}),
		},
	}
	projects := []models.Project{
		{ID: id("p"), Status: models.ProjectStatusActive},
		{ID: id("q"), Status: models.ProjectStatusOnHold},
		{ID: id("r"), Status: models.ProjectStatusActive},
		{ID: id("s"), Status: models.ProjectStatusCompleted},
	}
	k := ComputeKPIs(Evaluate(snap, DefaultOptions()), projects)

	assert.Equal(t, KPIs{
		ActiveProjects:     2,
		AvailableResources: 1,
		Conflicts:          1,
		Utilization:        83, // 100h over 120h
	}, k)
}

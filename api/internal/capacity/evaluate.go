package capacity

import (
	"sort"
	"strings"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/models"
)

// Snapshot is a read-only view of planning data for one period. Callers
// filter by department before building it.
type Snapshot struct {
	Period      Period
	Resources   []models.Resource
	Allocations []models.Allocation
	TimeOff     []models.TimeOff
	Projects    []models.Project
}

func (s Snapshot) ProjectIndex() map[uuid.UUID]models.Project {
	out := make(map[uuid.UUID]models.Project, len(s.Projects))
	for _, p := range s.Projects {
		out[p.ID] = p
	}
	return out
}

func (s Snapshot) Resource(id uuid.UUID) (models.Resource, bool) {
	for _, r := range s.Resources {
		if r.ID == id {
			return r, true
		}
	}
	return models.Resource{}, false
}

type Options struct {
	Policy              WeekPolicy
	StandardWeeklyHours float64
	MaxSuggestions      int
}

func DefaultOptions() Options {
	return Options{
		Policy:              WeekPolicyOverlap,
		StandardWeeklyHours: DefaultStandardWeeklyHours,
		MaxSuggestions:      DefaultMaxSuggestions,
	}
}

func (o Options) normalized() Options {
	if p, ok := ParseWeekPolicy(string(o.Policy)); ok {
		o.Policy = p
	} else {
		o.Policy = WeekPolicyOverlap
	}
	if o.StandardWeeklyHours <= 0 || !finite(o.StandardWeeklyHours) {
		o.StandardWeeklyHours = DefaultStandardWeeklyHours
	}
	if o.MaxSuggestions <= 0 {
		o.MaxSuggestions = DefaultMaxSuggestions
	}
	return o
}

type Evaluation struct {
	Period  Period
	// Window is the span capacity was measured over; see WeekPolicy.Window.
	Window  Period
	Policy  WeekPolicy
	Results []UtilizationResult
	Categorization
	Anomalies []AllocationAnomaly
	// Fallbacks lists resources evaluated with the standard weekly capacity.
	Fallbacks []uuid.UUID
}

func (e Evaluation) Result(resourceID uuid.UUID) (UtilizationResult, bool) {
	for _, r := range e.Results {
		if r.ResourceID == resourceID {
			return r, true
		}
	}
	return UtilizationResult{}, false
}

// Evaluate runs aggregation, utilization and categorization over the active
// resources of the snapshot.
func Evaluate(s Snapshot, opts Options) Evaluation {
	opts = opts.normalized()
	ids := make([]uuid.UUID, 0, len(s.Resources))
	for _, r := range s.Resources {
		if r.Active {
			ids = append(ids, r.ID)
		}
	}

	agg := Aggregate(s.Allocations, s.Period, opts.Policy)
	byID, excluded := calculateAll(s.Resources, agg, s.TimeOff, s.Period, ids, opts)
	results := sortedResults(byID)

	ev := Evaluation{
		Period:         s.Period,
		Window:         opts.Policy.Window(s.Period),
		Policy:         opts.Policy,
		Results:        results,
		Categorization: Categorize(results),
		Anomalies:      agg.Anomalies,
	}
	ev.Excluded = append(excluded, ev.Excluded...)
	for _, r := range results {
		if r.CapacityFallback {
			ev.Fallbacks = append(ev.Fallbacks, r.ResourceID)
		}
	}
	return ev
}

func evaluateResources(resources []models.Resource, allocations []models.Allocation, timeOff []models.TimeOff, period Period, ids []uuid.UUID, opts Options) (map[uuid.UUID]UtilizationResult, []Exclusion) {
	agg := Aggregate(allocations, period, opts.Policy)
	return calculateAll(resources, agg, timeOff, period, ids, opts)
}

func calculateAll(resources []models.Resource, agg Aggregation, timeOff []models.TimeOff, period Period, ids []uuid.UUID, opts Options) (map[uuid.UUID]UtilizationResult, []Exclusion) {
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[uuid.UUID]UtilizationResult, len(ids))
	var excluded []Exclusion
	window := opts.Policy.Window(period)
	for _, r := range resources {
		if _, ok := want[r.ID]; !ok {
			continue
		}
		if _, seen := out[r.ID]; seen {
			continue
		}
		res, err := Calculate(r, agg.For(r.ID), TimeOffHours(timeOff, r.ID, window), window, opts.StandardWeeklyHours)
		if err != nil {
			excluded = append(excluded, Exclusion{ResourceID: r.ID, ResourceName: r.Name, Reason: err.Error()})
			continue
		}
		out[r.ID] = res
	}
	return out, excluded
}

func sortedResults(byID map[uuid.UUID]UtilizationResult) []UtilizationResult {
	out := make([]UtilizationResult, 0, len(byID))
	for _, r := range byID {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if an, bn := strings.ToLower(out[i].ResourceName), strings.ToLower(out[j].ResourceName); an != bn {
			return an < bn
		}
		return out[i].ResourceID.String() < out[j].ResourceID.String()
	})
	return out
}

type KPIs struct {
	ActiveProjects     int `json:"activeProjects"`
	AvailableResources int `json:"availableResources"`
	Conflicts          int `json:"conflicts"`
	Utilization        int `json:"utilization"`
}

// ComputeKPIs summarises an evaluation. Available resources are those under
// 70% with usable capacity; utilization is booked over effective hours
// across the evaluated set.
func ComputeKPIs(ev Evaluation, projects []models.Project) KPIs {
	k := KPIs{Conflicts: ev.Summary.CriticalCount}
	for _, p := range projects {
		if p.Status == models.ProjectStatusActive {
			k.ActiveProjects++
		}
	}
	allocated, effective := 0.0, 0.0
	for _, r := range ev.Results {
		if r.Degenerate {
			continue
		}
		allocated += r.AllocatedHours
		effective += r.EffectiveCapacity
		if r.UtilizationPct < 70 {
			k.AvailableResources++
		}
	}
	k.Utilization = Percent(allocated, effective)
	return k
}

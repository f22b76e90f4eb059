package capacity

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/models"
)

var ErrInvalidDelta = errors.New("invalid allocation delta")

type DeltaKind string

const (
	// DeltaAdjust changes an allocation's hours inside the period by DeltaHours.
	DeltaAdjust DeltaKind = "adjust"
	// DeltaReassign moves DeltaHours (all in-period hours when 0) of an
	// allocation to TargetResourceID.
	DeltaReassign DeltaKind = "reassign"
	// DeltaAdd books DeltaHours for ResourceID on ProjectID across the period.
	DeltaAdd DeltaKind = "add"
	// DeltaRemove drops an allocation.
	DeltaRemove DeltaKind = "remove"
)

type AllocationDelta struct {
	Kind             DeltaKind `json:"kind"`
	AllocationID     uuid.UUID `json:"allocationId,omitempty"`
	ResourceID       uuid.UUID `json:"resourceId,omitempty"`
	TargetResourceID uuid.UUID `json:"targetResourceId,omitempty"`
	ProjectID        uuid.UUID `json:"projectId,omitempty"`
	DeltaHours       float64   `json:"deltaHours"`
}

type RejectedDelta struct {
	Index  int             `json:"index"`
	Delta  AllocationDelta `json:"delta"`
	Reason string          `json:"reason"`
}

type CategoryChange struct {
	ResourceID   uuid.UUID `json:"resourceId"`
	ResourceName string    `json:"resourceName"`
	Before       Category  `json:"before"`
	After        Category  `json:"after"`
	BeforePct    int       `json:"beforePct"`
	AfterPct     int       `json:"afterPct"`
}

type SimulationResult struct {
	Before   []UtilizationResult `json:"before"`
	After    []UtilizationResult `json:"after"`
	Changes  []CategoryChange    `json:"changes"`
	Rejected []RejectedDelta     `json:"rejected"`
	Excluded []Exclusion         `json:"excluded,omitempty"`
}

// Simulate applies deltas, in order, to a private copy of the baseline's
// allocations and recomputes every resource a delta touched. The baseline is
// never modified and identical inputs give identical output. A delta that
// cannot apply is rejected on its own; the rest still run.
func Simulate(baseline Snapshot, deltas []AllocationDelta, opts Options) SimulationResult {
	opts = opts.normalized()
	resources := make(map[uuid.UUID]models.Resource, len(baseline.Resources))
	for _, r := range baseline.Resources {
		resources[r.ID] = r
	}

	ov := newOverlay(baseline.Allocations)
	touched := make(map[uuid.UUID]struct{})
	out := SimulationResult{
		Changes:  []CategoryChange{},
		Rejected: []RejectedDelta{},
	}

	for i, d := range deltas {
		ids, err := ov.apply(i, d, baseline.Period, opts.Policy, resources)
		if err != nil {
			out.Rejected = append(out.Rejected, RejectedDelta{Index: i, Delta: d, Reason: err.Error()})
			continue
		}
		for _, id := range ids {
			touched[id] = struct{}{}
		}
	}

	ids := make([]uuid.UUID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	before, beforeExcluded := evaluateResources(baseline.Resources, baseline.Allocations, baseline.TimeOff, baseline.Period, ids, opts)
	afterSnap := baseline
	afterSnap.Allocations = ov.allocations()
	after, afterExcluded := evaluateResources(afterSnap.Resources, afterSnap.Allocations, afterSnap.TimeOff, afterSnap.Period, ids, opts)

	out.Before = sortedResults(before)
	out.After = sortedResults(after)
	out.Excluded = append(beforeExcluded, afterExcluded...)

	for _, a := range out.After {
		b, ok := before[a.ResourceID]
		if !ok {
			continue
		}
		bc, ac := Classify(b), Classify(a)
		if bc != ac {
			out.Changes = append(out.Changes, CategoryChange{
				ResourceID:   a.ResourceID,
				ResourceName: a.ResourceName,
				Before:       bc,
				After:        ac,
				BeforePct:    b.UtilizationPct,
				AfterPct:     a.UtilizationPct,
			})
		}
	}
	return out
}

// overlay is a copy-on-write view over the baseline allocations.
type overlay struct {
	order []uuid.UUID
	byID  map[uuid.UUID]models.Allocation
}

func newOverlay(base []models.Allocation) *overlay {
	ov := &overlay{byID: make(map[uuid.UUID]models.Allocation, len(base))}
	for _, a := range base {
		if _, dup := ov.byID[a.ID]; dup {
			continue
		}
		ov.order = append(ov.order, a.ID)
		ov.byID[a.ID] = a.Clone()
	}
	return ov
}

func (o *overlay) allocations() []models.Allocation {
	out := make([]models.Allocation, 0, len(o.order))
	for _, id := range o.order {
		if a, ok := o.byID[id]; ok {
			out = append(out, a)
		}
	}
	return out
}

func (o *overlay) add(a models.Allocation) {
	o.order = append(o.order, a.ID)
	o.byID[a.ID] = a
}

func (o *overlay) apply(index int, d AllocationDelta, period Period, policy WeekPolicy, resources map[uuid.UUID]models.Resource) ([]uuid.UUID, error) {
	if !finite(d.DeltaHours) {
		return nil, fmt.Errorf("%w: non-finite hours", ErrInvalidDelta)
	}
	switch d.Kind {
	case DeltaAdjust:
		a, ok := o.byID[d.AllocationID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown allocation %s", ErrInvalidDelta, d.AllocationID)
		}
		updated, err := adjustAllocation(a, d.DeltaHours, period, policy)
		if err != nil {
			return nil, err
		}
		o.byID[a.ID] = updated
		return []uuid.UUID{a.ResourceID}, nil

	case DeltaRemove:
		a, ok := o.byID[d.AllocationID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown allocation %s", ErrInvalidDelta, d.AllocationID)
		}
		delete(o.byID, a.ID)
		return []uuid.UUID{a.ResourceID}, nil

	case DeltaReassign:
		a, ok := o.byID[d.AllocationID]
		if !ok {
			return nil, fmt.Errorf("%w: unknown allocation %s", ErrInvalidDelta, d.AllocationID)
		}
		target, ok := resources[d.TargetResourceID]
		if !ok || !target.Active {
			return nil, fmt.Errorf("%w: unknown or inactive target resource %s", ErrInvalidDelta, d.TargetResourceID)
		}
		if target.ID == a.ResourceID {
			return nil, fmt.Errorf("%w: target is the allocation's own resource", ErrInvalidDelta)
		}
		inPeriod, err := AllocationHours(a, period, policy)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
		}
		moved := d.DeltaHours
		if moved == 0 {
			moved = inPeriod
		}
		if moved <= 0 {
			return nil, fmt.Errorf("%w: nothing to move", ErrInvalidDelta)
		}
		if moved > inPeriod+hoursEpsilon {
			return nil, fmt.Errorf("%w: moving %.2fh exceeds the %.2fh allocated in period", ErrInvalidDelta, moved, inPeriod)
		}
		updated, err := adjustAllocation(a, -moved, period, policy)
		if err != nil {
			return nil, err
		}
		o.byID[a.ID] = updated
		o.add(periodAllocation(index, d, target.ID, a.ProjectID, moved, period))
		return []uuid.UUID{a.ResourceID, target.ID}, nil

	case DeltaAdd:
		r, ok := resources[d.ResourceID]
		if !ok || !r.Active {
			return nil, fmt.Errorf("%w: unknown or inactive resource %s", ErrInvalidDelta, d.ResourceID)
		}
		if d.DeltaHours <= 0 {
			return nil, fmt.Errorf("%w: added hours must be positive", ErrInvalidDelta)
		}
		o.add(periodAllocation(index, d, r.ID, d.ProjectID, d.DeltaHours, period))
		return []uuid.UUID{r.ID}, nil

	default:
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidDelta, d.Kind)
	}
}

// adjustAllocation returns a copy of a whose in-period hours changed by delta.
// Weekly breakdowns are scaled week by week; flat allocations change their
// lifetime total so the prorated share moves by exactly delta.
func adjustAllocation(a models.Allocation, delta float64, period Period, policy WeekPolicy) (models.Allocation, error) {
	current, err := AllocationHours(a, period, policy)
	if err != nil {
		return models.Allocation{}, fmt.Errorf("%w: %v", ErrInvalidDelta, err)
	}
	next := current + delta
	if next < -hoursEpsilon {
		return models.Allocation{}, fmt.Errorf("%w: %.2fh would leave %.2fh in period", ErrInvalidDelta, delta, next)
	}
	if next < 0 {
		next = 0
	}

	out := a.Clone()
	if a.HasWeeklyBreakdown() {
		if current > 0 {
			factor := next / current
			for _, k := range out.Weekly.Keys() {
				if policy.weekShare(k, period) > 0 {
					out.Weekly[k] *= factor
				}
			}
			return out, nil
		}
		keys, weight := spreadWeeks(a, period, policy)
		if weight == 0 {
			return models.Allocation{}, fmt.Errorf("%w: allocation has no weeks in period", ErrInvalidDelta)
		}
		for _, k := range keys {
			out.Weekly[k] += delta / weight
		}
		return out, nil
	}

	span, err := NewPeriod(a.StartDate, a.EndDate)
	if err != nil {
		return models.Allocation{}, fmt.Errorf("%w: allocation span: %v", ErrInvalidDelta, err)
	}
	share := spanShare(span, policy.Window(period))
	if share == 0 {
		return models.Allocation{}, fmt.Errorf("%w: allocation does not overlap period", ErrInvalidDelta)
	}
	out.AllocatedHours = a.AllocatedHours + delta/share
	if out.AllocatedHours < 0 {
		out.AllocatedHours = 0
	}
	return out, nil
}

// spreadWeeks picks the period weeks inside the allocation's own span (or
// every period week when the span misses the period) and their total weight.
func spreadWeeks(a models.Allocation, period Period, policy WeekPolicy) ([]models.WeekKey, float64) {
	all := period.WeekKeys()
	var keys []models.WeekKey
	if span, err := NewPeriod(a.StartDate, a.EndDate); err == nil {
		for _, k := range all {
			if span.Overlaps(k.Start(), k.End()) {
				keys = append(keys, k)
			}
		}
	}
	if len(keys) == 0 {
		keys = all
	}
	weight := 0.0
	for _, k := range keys {
		weight += policy.weekShare(k, period)
	}
	return keys, weight
}

// periodAllocation builds a hypothetical allocation covering the period. Its
// id is derived from the delta so repeated simulations agree.
func periodAllocation(index int, d AllocationDelta, resourceID uuid.UUID, projectID uuid.UUID, hours float64, period Period) models.Allocation {
	name := fmt.Sprintf("simulation:%d:%s:%s:%s:%s:%s", index, d.Kind, d.AllocationID, resourceID, projectID, period)
	return models.Allocation{
		ID:             uuid.NewSHA1(uuid.NameSpaceOID, []byte(name)),
		ResourceID:     resourceID,
		ProjectID:      projectID,
		StartDate:      period.Start,
		EndDate:        period.End,
		AllocatedHours: hours,
		Status:         models.AllocationStatusPlanned,
	}
}

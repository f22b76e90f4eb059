package capacity

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/models"
)

// AllocationAnomaly records allocation data that could not be counted.
type AllocationAnomaly struct {
	AllocationID uuid.UUID `json:"allocationId"`
	ResourceID   uuid.UUID `json:"resourceId"`
	Key          string    `json:"key,omitempty"`
	Reason       string    `json:"reason"`
}

type Aggregation struct {
	Hours     map[uuid.UUID]float64
	Anomalies []AllocationAnomaly
}

func (a Aggregation) For(resourceID uuid.UUID) float64 {
	return a.Hours[resourceID]
}

// Aggregate sums, per resource, the allocated hours falling inside the period.
// Allocations with a weekly breakdown count the weeks touching the period;
// the rest are prorated by how much of their own span overlaps the policy
// window. Bad
// records contribute zero and are reported as anomalies.
func Aggregate(allocations []models.Allocation, period Period, policy WeekPolicy) Aggregation {
	out := Aggregation{Hours: make(map[uuid.UUID]float64)}
	for _, a := range allocations {
		for _, wa := range a.WeekKeyAnomalies {
			out.Anomalies = append(out.Anomalies, AllocationAnomaly{
				AllocationID: a.ID,
				ResourceID:   a.ResourceID,
				Key:          wa.Key,
				Reason:       wa.Reason,
			})
		}
		hours, err := AllocationHours(a, period, policy)
		if err != nil {
			out.Anomalies = append(out.Anomalies, AllocationAnomaly{
				AllocationID: a.ID,
				ResourceID:   a.ResourceID,
				Reason:       err.Error(),
			})
			continue
		}
		if hours > 0 {
			out.Hours[a.ResourceID] += hours
		}
	}
	sort.SliceStable(out.Anomalies, func(i, j int) bool {
		if out.Anomalies[i].ResourceID != out.Anomalies[j].ResourceID {
			return out.Anomalies[i].ResourceID.String() < out.Anomalies[j].ResourceID.String()
		}
		return out.Anomalies[i].AllocationID.String() < out.Anomalies[j].AllocationID.String()
	})
	return out
}

// AllocationHours is the share of one allocation inside the period.
func AllocationHours(a models.Allocation, period Period, policy WeekPolicy) (float64, error) {
	if a.HasWeeklyBreakdown() {
		total := 0.0
		for _, k := range a.Weekly.Keys() {
			h := a.Weekly[k]
			if math.IsNaN(h) || math.IsInf(h, 0) || h < 0 {
				return 0, fmt.Errorf("week %s has invalid hours %v", k, h)
			}
			total += h * policy.weekShare(k, period)
		}
		return total, nil
	}

	if math.IsNaN(a.AllocatedHours) || math.IsInf(a.AllocatedHours, 0) || a.AllocatedHours < 0 {
		return 0, fmt.Errorf("invalid allocated hours %v", a.AllocatedHours)
	}
	if a.AllocatedHours == 0 {
		return 0, nil
	}
	span, err := NewPeriod(a.StartDate, a.EndDate)
	if err != nil {
		return 0, fmt.Errorf("allocation span: %w", err)
	}
	return a.AllocatedHours * spanShare(span, policy.Window(period)), nil
}

func spanShare(span Period, period Period) float64 {
	overlap := period.OverlapDays(span.Start, span.End)
	if overlap == 0 {
		return 0
	}
	return float64(overlap) / float64(span.Days())
}

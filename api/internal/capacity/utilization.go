package capacity

import (
	"errors"
	"fmt"
	"math"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/models"
)

var ErrInvalidInput = errors.New("invalid utilization input")

const DefaultStandardWeeklyHours = 40.0

type UtilizationResult struct {
	ResourceID        uuid.UUID `json:"resourceId"`
	ResourceName      string    `json:"resourceName"`
	Department        string    `json:"department"`
	Role              string    `json:"role,omitempty"`
	AllocatedHours    float64   `json:"allocatedHours"`
	NominalCapacity   float64   `json:"nominalCapacity"`
	NonProjectHours   float64   `json:"nonProjectHours"`
	TimeOffHours      float64   `json:"timeOffHours"`
	EffectiveCapacity float64   `json:"effectiveCapacity"`
	AvailableHours    float64   `json:"availableHours"`
	UtilizationPct    int       `json:"utilizationPct"`
	// Degenerate is set when effective capacity is zero or negative; the
	// percentage is then reported as 0.
	Degenerate bool `json:"degenerate,omitempty"`
	// CapacityFallback is set when the resource had no usable weekly capacity
	// and the standard one was used.
	CapacityFallback bool `json:"capacityFallback,omitempty"`
}

// Spare is the unallocated part of effective capacity, never negative.
func (r UtilizationResult) Spare() float64 {
	if r.Degenerate || r.AvailableHours < 0 {
		return 0
	}
	return r.AvailableHours
}

// Calculate derives a resource's utilization for the period.
//
//	effective = weeklyCapacity*weeks - nonProjectHours - timeOffHours
//	pct       = round(allocated / effective * 100), or 0 when effective <= 0
func Calculate(resource models.Resource, allocatedHours float64, timeOffHours float64, period Period, standardWeeklyHours float64) (UtilizationResult, error) {
	if !finite(allocatedHours) || allocatedHours < 0 {
		return UtilizationResult{}, fmt.Errorf("%w: allocated hours %v", ErrInvalidInput, allocatedHours)
	}
	if !finite(timeOffHours) || timeOffHours < 0 {
		return UtilizationResult{}, fmt.Errorf("%w: time off hours %v", ErrInvalidInput, timeOffHours)
	}
	if !finite(resource.NonProjectHoursPerWeek) || resource.NonProjectHoursPerWeek < 0 {
		return UtilizationResult{}, fmt.Errorf("%w: non-project hours %v", ErrInvalidInput, resource.NonProjectHoursPerWeek)
	}

	weekly := resource.WeeklyCapacity
	fallback := false
	if !finite(weekly) || weekly <= 0 {
		if standardWeeklyHours <= 0 {
			standardWeeklyHours = DefaultStandardWeeklyHours
		}
		weekly = standardWeeklyHours
		fallback = true
	}

	weeks := period.Weeks()
	nominal := weekly * weeks
	nonProject := resource.NonProjectHoursPerWeek * weeks
	effective := nominal - nonProject - timeOffHours

	res := UtilizationResult{
		ResourceID:        resource.ID,
		ResourceName:      resource.Name,
		Department:        resource.Department,
		Role:              resource.Role,
		AllocatedHours:    allocatedHours,
		NominalCapacity:   nominal,
		NonProjectHours:   nonProject,
		TimeOffHours:      timeOffHours,
		EffectiveCapacity: effective,
		AvailableHours:    effective - allocatedHours,
		CapacityFallback:  fallback,
	}
	if effective <= 0 {
		res.Degenerate = true
		return res, nil
	}
	res.UtilizationPct = Percent(allocatedHours, effective)
	return res, nil
}

// Percent rounds part/whole*100 half away from zero.
func Percent(part float64, whole float64) int {
	if whole <= 0 {
		return 0
	}
	return int(math.Round(part / whole * 100))
}

// TimeOffHours sums a resource's time off inside the period, prorated by
// the days each entry shares with it.
func TimeOffHours(entries []models.TimeOff, resourceID uuid.UUID, period Period) float64 {
	total := 0.0
	for _, t := range entries {
		if t.ResourceID != resourceID || !finite(t.Hours) || t.Hours <= 0 {
			continue
		}
		span, err := NewPeriod(t.StartDate, t.EndDate)
		if err != nil {
			continue
		}
		total += t.Hours * spanShare(span, period)
	}
	return total
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

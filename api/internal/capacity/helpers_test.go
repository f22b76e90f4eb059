package capacity

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/models"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func wk(year int, week int) models.WeekKey {
	return models.WeekKey{Year: year, Week: week}
}

func id(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("test:"+name))
}

func resource(name string, weekly float64) models.Resource {
	return models.Resource{
		ID:             id(name),
		Name:           name,
		Department:     "engineering",
		Role:           "developer",
		WeeklyCapacity: weekly,
		Active:         true,
	}
}

func weeklyAllocation(name string, res models.Resource, project uuid.UUID, hours map[models.WeekKey]float64) models.Allocation {
	w := make(models.WeeklyHours, len(hours))
	first, last := models.WeekKey{}, models.WeekKey{}
	for k, v := range hours {
		w[k] = v
		if first.Year == 0 || k.Before(first) {
			first = k
		}
		if last.Year == 0 || last.Before(k) {
			last = k
		}
	}
	return models.Allocation{
		ID:         id(name),
		ResourceID: res.ID,
		ProjectID:  project,
		StartDate:  first.Start(),
		EndDate:    last.End(),
		Weekly:     w,
		Status:     models.AllocationStatusActive,
	}
}

func flatAllocation(name string, res models.Resource, project uuid.UUID, start time.Time, end time.Time, hours float64) models.Allocation {
	return models.Allocation{
		ID:             id(name),
		ResourceID:     res.ID,
		ProjectID:      project,
		StartDate:      start,
		EndDate:        end,
		AllocatedHours: hours,
		Status:         models.AllocationStatusActive,
	}
}

func project(name string, priority models.ProjectPriority) models.Project {
	return models.Project{ID: id(name), Name: name, Priority: priority, Status: models.ProjectStatusActive}
}

func mustPeriod(start time.Time, end time.Time) Period {
	p, err := NewPeriod(start, end)
	if err != nil {
		panic(fmt.Sprintf("bad test period: %v", err))
	}
	return p
}

// result builds a utilization result with the given hours over one week.
func result(name string, allocated float64, effective float64) UtilizationResult {
	r := UtilizationResult{
		ResourceID:        id(name),
		ResourceName:      name,
		Department:        "engineering",
		Role:              "developer",
		AllocatedHours:    allocated,
		NominalCapacity:   effective,
		EffectiveCapacity: effective,
		AvailableHours:    effective - allocated,
	}
	if effective <= 0 {
		r.Degenerate = true
	} else {
		r.UtilizationPct = Percent(allocated, effective)
	}
	return r
}

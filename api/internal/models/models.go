package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Resource struct {
	ID                     uuid.UUID `json:"id"`
	Name                   string    `json:"name"`
	Department             string    `json:"department"`
	Role                   string    `json:"role"`
	WeeklyCapacity         float64   `json:"weeklyCapacity"`
	NonProjectHoursPerWeek float64   `json:"nonProjectHoursPerWeek"`
	Active                 bool      `json:"active"`
}

type AllocationStatus string

const (
	AllocationStatusPlanned   AllocationStatus = "planned"
	AllocationStatusActive    AllocationStatus = "active"
	AllocationStatusCompleted AllocationStatus = "completed"
)

func ParseAllocationStatus(raw string) AllocationStatus {
	switch AllocationStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case AllocationStatusPlanned:
		return AllocationStatusPlanned
	case AllocationStatusCompleted:
		return AllocationStatusCompleted
	default:
		return AllocationStatusActive
	}
}

// Allocation is a resource's assignment to a project. Weekly, when populated,
// takes precedence over AllocatedHours for period aggregation.
type Allocation struct {
	ID               uuid.UUID        `json:"id"`
	ResourceID       uuid.UUID        `json:"resourceId"`
	ProjectID        uuid.UUID        `json:"projectId"`
	StartDate        time.Time        `json:"startDate"`
	EndDate          time.Time        `json:"endDate"`
	AllocatedHours   float64          `json:"allocatedHours"`
	Weekly           WeeklyHours      `json:"weeklyAllocations,omitempty"`
	Status           AllocationStatus `json:"status"`
	WeekKeyAnomalies []WeekKeyAnomaly `json:"-"`
}

func (a Allocation) HasWeeklyBreakdown() bool {
	return len(a.Weekly) > 0
}

// Clone returns a copy that shares no mutable state with a.
func (a Allocation) Clone() Allocation {
	out := a
	out.Weekly = a.Weekly.Clone()
	if a.WeekKeyAnomalies != nil {
		out.WeekKeyAnomalies = append([]WeekKeyAnomaly(nil), a.WeekKeyAnomalies...)
	}
	return out
}

type TimeOff struct {
	ID         uuid.UUID `json:"id"`
	ResourceID uuid.UUID `json:"resourceId"`
	StartDate  time.Time `json:"startDate"`
	EndDate    time.Time `json:"endDate"`
	Hours      float64   `json:"hours"`
}

type ProjectPriority string

const (
	ProjectPriorityLow      ProjectPriority = "low"
	ProjectPriorityMedium   ProjectPriority = "medium"
	ProjectPriorityHigh     ProjectPriority = "high"
	ProjectPriorityCritical ProjectPriority = "critical"
)

// Rank orders priorities from least (1) to most important (4). Unknown
// priorities rank as medium.
func (p ProjectPriority) Rank() int {
	switch ProjectPriority(strings.ToLower(strings.TrimSpace(string(p)))) {
	case ProjectPriorityLow:
		return 1
	case ProjectPriorityHigh:
		return 3
	case ProjectPriorityCritical:
		return 4
	default:
		return 2
	}
}

type ProjectStatus string

const (
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusOnHold    ProjectStatus = "on_hold"
	ProjectStatusCompleted ProjectStatus = "completed"
)

type Project struct {
	ID       uuid.UUID       `json:"id"`
	Name     string          `json:"name"`
	Priority ProjectPriority `json:"priority"`
	Status   ProjectStatus   `json:"status"`
}

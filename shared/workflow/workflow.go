package workflow

import "strings"

const (
	AllocationStatusPlanned   = "planned"
	AllocationStatusActive    = "active"
	AllocationStatusCompleted = "completed"
)

const (
	AllocationEventCreated   = "allocation_created"
	AllocationEventStarted   = "allocation_started"
	AllocationEventCompleted = "allocation_completed"
	AllocationEventReplanned = "allocation_replanned"
	AllocationEventUpdated   = "allocation_updated"
	AllocationEventDeleted   = "allocation_deleted"
)

var allocationTransitions = map[string]map[string]string{
	AllocationStatusPlanned: {
		AllocationStatusActive:    AllocationEventStarted,
		AllocationStatusCompleted: AllocationEventCompleted,
	},
	AllocationStatusActive: {
		AllocationStatusCompleted: AllocationEventCompleted,
		AllocationStatusPlanned:   AllocationEventReplanned,
	},
}

func NormalizeStatus(status string) string {
	return strings.ToLower(strings.TrimSpace(status))
}

// CanTransition reports whether an allocation may move between statuses.
// Completed is terminal.
func CanTransition(fromStatus string, toStatus string) bool {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	if fromStatus == toStatus {
		return true
	}
	if fromStatus == "" {
		return toStatus == AllocationStatusPlanned || toStatus == AllocationStatusActive
	}
	next := allocationTransitions[fromStatus]
	if next == nil {
		return false
	}
	_, ok := next[toStatus]
	return ok
}

func EventTypeForTransition(fromStatus string, toStatus string) string {
	fromStatus = NormalizeStatus(fromStatus)
	toStatus = NormalizeStatus(toStatus)
	if fromStatus == "" && toStatus != "" {
		return AllocationEventCreated
	}
	if fromStatus == toStatus {
		return AllocationEventUpdated
	}
	next := allocationTransitions[fromStatus]
	if next == nil {
		return ""
	}
	return next[toStatus]
}

// Adjustable reports whether hours on an allocation in this status may still
// be reduced or moved.
func Adjustable(status string) bool {
	switch NormalizeStatus(status) {
	case AllocationStatusPlanned, AllocationStatusActive, "":
		return true
	default:
		return false
	}
}

func AllAllocationStatuses() []string {
	return []string{
		AllocationStatusPlanned,
		AllocationStatusActive,
		AllocationStatusCompleted,
	}
}

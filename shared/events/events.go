package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
}

const (
	TopicCapacityAlerts    = "capacity.alerts"
	TopicAllocationChanges = "allocation.changes"
	TopicCapacitySweeps    = "capacity.sweeps"
)

const (
	AggregateAllocation = "allocation"
	AggregateResource   = "resource"
	AggregateDepartment = "department"

	EventCapacityAlertRaised = "capacity.alert_raised"
	EventSweepCompleted      = "capacity.sweep_completed"
)

var ErrMalformedEvent = errors.New("malformed event")

// AllocationChanged is published by the allocation service whenever an
// allocation is created, edited, moved between statuses or removed.
type AllocationChanged struct {
	AllocationID uuid.UUID `json:"allocation_id"`
	ResourceID   uuid.UUID `json:"resource_id"`
	ProjectID    uuid.UUID `json:"project_id"`
	Department   string    `json:"department"`
	FromStatus   string    `json:"from_status,omitempty"`
	ToStatus     string    `json:"to_status,omitempty"`
}

type CapacityAlert struct {
	ResourceID     uuid.UUID `json:"resource_id"`
	ResourceName   string    `json:"resource_name"`
	Department     string    `json:"department"`
	Category       string    `json:"category"`
	Severity       string    `json:"severity"`
	UtilizationPct int       `json:"utilization_pct"`
	AllocatedHours float64   `json:"allocated_hours"`
	EffectiveHours float64   `json:"effective_hours"`
	PeriodStart    string    `json:"period_start"`
	PeriodEnd      string    `json:"period_end"`
}

type SweepCompleted struct {
	Department  string         `json:"department"`
	PeriodStart string         `json:"period_start"`
	PeriodEnd   string         `json:"period_end"`
	Evaluated   int            `json:"evaluated"`
	Excluded    int            `json:"excluded"`
	Counts      map[string]int `json:"counts"`
}

// New wraps payload in an envelope stamped with a fresh event id.
func New(aggregateType string, aggregateID uuid.UUID, eventType string, payload any, now time.Time) (Envelope, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:       uuid.New(),
		OccurredAt:    now.UTC(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}

func Decode(raw []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if env.EventType == "" || len(env.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: missing event_type or payload", ErrMalformedEvent)
	}
	return env, nil
}

func (e Envelope) DecodePayload(dst any) error {
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return fmt.Errorf("%w: payload of %s: %v", ErrMalformedEvent, e.EventType, err)
	}
	return nil
}

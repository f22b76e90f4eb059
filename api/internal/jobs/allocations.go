package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"resource-planning-system/shared/events"
	"resource-planning-system/shared/logx"
	"resource-planning-system/shared/workflow"
)

type Invalidator interface {
	Invalidate(ctx context.Context, department string) error
}

type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AllocationChangeHandler reacts to the allocation change feed: it drops the
// cached alerts for the department and asks the worker for a fresh sweep.
type AllocationChangeHandler struct {
	Cache    Invalidator
	Enqueuer Enqueuer
	Queue    string
	// Debounce collapses bursts of changes into one sweep per department.
	Debounce time.Duration
	Logger   logx.Logger
}

// Handle processes one raw message. Errors wrapping events.ErrMalformedEvent
// will never succeed on retry.
func (h AllocationChangeHandler) Handle(ctx context.Context, raw []byte) error {
	env, err := events.Decode(raw)
	if err != nil {
		return err
	}
	if env.AggregateType != events.AggregateAllocation {
		h.Logger.Debug(ctx, "event_ignored", "not an allocation event",
			slog.String("event_id", env.EventID.String()),
			slog.String("aggregate_type", env.AggregateType),
		)
		return nil
	}
	var change events.AllocationChanged
	if err := env.DecodePayload(&change); err != nil {
		return err
	}

	attrs := []slog.Attr{
		slog.String("event_id", env.EventID.String()),
		slog.String("allocation_id", change.AllocationID.String()),
		slog.String("department", change.Department),
	}
	if change.FromStatus != "" || change.ToStatus != "" {
		if !workflow.CanTransition(change.FromStatus, change.ToStatus) {
			h.Logger.Warn(ctx, "allocation_transition_invalid", "allocation moved through an unexpected status transition",
				append(attrs,
					slog.String("from_status", change.FromStatus),
					slog.String("to_status", change.ToStatus),
				)...,
			)
		} else {
			attrs = append(attrs, slog.String("transition", workflow.EventTypeForTransition(change.FromStatus, change.ToStatus)))
		}
	}

	if h.Cache != nil {
		if err := h.Cache.Invalidate(ctx, change.Department); err != nil {
			return fmt.Errorf("invalidate alerts: %w", err)
		}
	}
	if h.Enqueuer != nil {
		if err := h.enqueueSweep(ctx, change.Department); err != nil {
			return err
		}
	}
	h.Logger.Info(ctx, "allocation_change_applied", "allocation change processed", attrs...)
	return nil
}

func (h AllocationChangeHandler) enqueueSweep(ctx context.Context, department string) error {
	opts := []asynq.Option{asynq.MaxRetry(3)}
	if h.Queue != "" {
		opts = append(opts, asynq.Queue(h.Queue))
	}
	if h.Debounce > 0 {
		opts = append(opts, asynq.Unique(h.Debounce))
	}
	task, err := NewSweepTask(department, opts...)
	if err != nil {
		return err
	}
	if _, err := h.Enqueuer.EnqueueContext(ctx, task); err != nil {
		if errors.Is(err, asynq.ErrDuplicateTask) {
			return nil
		}
		return fmt.Errorf("enqueue sweep: %w", err)
	}
	return nil
}

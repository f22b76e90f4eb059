package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"resource-planning-system/api/internal/planner"
	"resource-planning-system/shared/logx"
	"resource-planning-system/shared/observability"
)

const TypeCapacitySweep = "capacity.sweep"

const sweepLockPrefix = "capacity:sweep:lock:"

type SweepPayload struct {
	Department string `json:"department,omitempty"`
}

// NewSweepTask builds a sweep for one department; empty means the
// all-departments view plus every configured department.
func NewSweepTask(department string, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(SweepPayload{Department: strings.TrimSpace(department)})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeCapacitySweep, payload, opts...), nil
}

type Sweeper interface {
	Sweep(ctx context.Context, department string) (planner.SweepReport, error)
	Departments(ctx context.Context) ([]string, error)
}

// Locker runs fn while holding key, reporting ran=false when someone else
// holds it. lockx.WithLock bound to a redis client satisfies it.
type Locker func(ctx context.Context, key string, ttl time.Duration, fn func(context.Context) error) (bool, error)

type SweepHandler struct {
	Sweeper     Sweeper
	Lock        Locker
	LockTTL     time.Duration
	Departments []string
	Logger      logx.Logger
}

func (h SweepHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	ctx, span := observability.Tracer("asynq").Start(ctx, TypeCapacitySweep)
	defer span.End()

	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			span.SetStatus(codes.Error, "bad payload")
			return fmt.Errorf("decode sweep payload: %v: %w", err, asynq.SkipRetry)
		}
	}

	departments, err := h.targets(ctx, payload.Department)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(attribute.Int("departments", len(departments)))

	var errs []error
	for _, d := range departments {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if err := h.sweepOne(ctx, d); err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", d, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	return nil
}

// targets expands an empty department into the all-departments view followed
// by each department.
func (h SweepHandler) targets(ctx context.Context, department string) ([]string, error) {
	if department != "" {
		return []string{department}, nil
	}
	known := h.Departments
	if len(known) == 0 {
		var err error
		if known, err = h.Sweeper.Departments(ctx); err != nil {
			return nil, fmt.Errorf("list departments: %w", err)
		}
	}
	return append([]string{""}, known...), nil
}

func lockKey(department string) string {
	if department == "" {
		return sweepLockPrefix + "*"
	}
	return sweepLockPrefix + strings.ToLower(department)
}

func (h SweepHandler) sweepOne(ctx context.Context, department string) error {
	run := func(ctx context.Context) error {
		_, err := h.Sweeper.Sweep(ctx, department)
		return err
	}
	if h.Lock == nil {
		return run(ctx)
	}
	ttl := h.LockTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	ran, err := h.Lock(ctx, lockKey(department), ttl, run)
	if err != nil {
		return err
	}
	if !ran {
		h.Logger.Info(ctx, "capacity_sweep_skipped", "sweep already running elsewhere",
			slog.String("department", department),
		)
	}
	return nil
}

package repos

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"resource-planning-system/api/internal/capacity"
	"resource-planning-system/api/internal/models"
	"resource-planning-system/shared/dbx"
)

// SnapshotRepo assembles the read-only planning view the capacity engine
// evaluates. All four reads share one repeatable-read transaction.
type SnapshotRepo struct {
	pool *pgxpool.Pool
}

func NewSnapshotRepo(pool *pgxpool.Pool) *SnapshotRepo {
	return &SnapshotRepo{pool: pool}
}

func (r *SnapshotRepo) LoadSnapshot(ctx context.Context, department string, period capacity.Period) (capacity.Snapshot, error) {
	snap := capacity.Snapshot{Period: period}
	err := dbx.ReadSnapshot(ctx, r.pool, func(tx pgx.Tx) error {
		var err error
		if snap.Resources, err = NewResourcesRepo(tx).ListByDepartment(ctx, department); err != nil {
			return fmt.Errorf("load resources: %w", err)
		}
		if snap.Allocations, err = NewAllocationsRepo(tx).ListOverlapping(ctx, department, period.Start, period.End); err != nil {
			return fmt.Errorf("load allocations: %w", err)
		}
		if snap.TimeOff, err = NewTimeOffRepo(tx).ListOverlapping(ctx, department, period.Start, period.End); err != nil {
			return fmt.Errorf("load time off: %w", err)
		}
		if snap.Projects, err = NewProjectsRepo(tx).List(ctx); err != nil {
			return fmt.Errorf("load projects: %w", err)
		}
		return nil
	})
	if err != nil {
		return capacity.Snapshot{}, err
	}
	return snap, nil
}

func (r *SnapshotRepo) Departments(ctx context.Context) ([]string, error) {
	if r.pool == nil {
		return nil, fmt.Errorf("db pool is nil")
	}
	return NewResourcesRepo(r.pool).Departments(ctx)
}

func (r *SnapshotRepo) Resource(ctx context.Context, id uuid.UUID) (models.Resource, bool, error) {
	if r.pool == nil {
		return models.Resource{}, false, fmt.Errorf("db pool is nil")
	}
	res, err := NewResourcesRepo(r.pool).Get(ctx, id)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Resource{}, false, nil
	}
	if err != nil {
		return models.Resource{}, false, err
	}
	return res, true, nil
}

package repos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"resource-planning-system/api/internal/models"
)

type ResourcesRepo struct {
	db DBTX
}

func NewResourcesRepo(db DBTX) *ResourcesRepo {
	return &ResourcesRepo{db: db}
}

const resourceColumns = `resource_id, name, department, role,
	COALESCE(weekly_capacity, 0)::float8, COALESCE(non_project_hours_per_week, 0)::float8, active`

func scanResource(row pgx.Row) (models.Resource, error) {
	var r models.Resource
	err := row.Scan(&r.ID, &r.Name, &r.Department, &r.Role, &r.WeeklyCapacity, &r.NonProjectHoursPerWeek, &r.Active)
	return r, err
}

// ListByDepartment returns active and inactive resources; an empty department
// means all of them.
func (r *ResourcesRepo) ListByDepartment(ctx context.Context, department string) ([]models.Resource, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE ($1 = '' OR department = $1)
		ORDER BY name, resource_id
	`, strings.TrimSpace(department))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Resource
	for rows.Next() {
		res, err := scanResource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r *ResourcesRepo) Get(ctx context.Context, id uuid.UUID) (models.Resource, error) {
	return scanResource(r.db.QueryRow(ctx, `
		SELECT `+resourceColumns+`
		FROM resources
		WHERE resource_id = $1
	`, id))
}

func (r *ResourcesRepo) Departments(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT department
		FROM resources
		WHERE department <> ''
		ORDER BY department
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

package repos

import (
	"context"
	"strings"
	"time"

	"resource-planning-system/api/internal/models"
)

type TimeOffRepo struct {
	db DBTX
}

func NewTimeOffRepo(db DBTX) *TimeOffRepo {
	return &TimeOffRepo{db: db}
}

func (r *TimeOffRepo) ListOverlapping(ctx context.Context, department string, start time.Time, end time.Time) ([]models.TimeOff, error) {
	rows, err := r.db.Query(ctx, `
		SELECT t.time_off_id, t.resource_id, t.start_date, t.end_date, COALESCE(t.hours, 0)::float8
		FROM time_off t
		JOIN resources r ON r.resource_id = t.resource_id
		WHERE ($1 = '' OR r.department = $1)
			AND t.start_date <= $3
			AND t.end_date >= $2
		ORDER BY t.resource_id, t.start_date
	`, strings.TrimSpace(department), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.TimeOff
	for rows.Next() {
		var t models.TimeOff
		if err := rows.Scan(&t.ID, &t.ResourceID, &t.StartDate, &t.EndDate, &t.Hours); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

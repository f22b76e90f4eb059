package repos

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"resource-planning-system/api/internal/models"
)

type AllocationsRepo struct {
	db DBTX
}

func NewAllocationsRepo(db DBTX) *AllocationsRepo {
	return &AllocationsRepo{db: db}
}

// ListOverlapping returns every allocation, of any status, whose date span
// touches [start, end] for resources in department (empty means all).
func (r *AllocationsRepo) ListOverlapping(ctx context.Context, department string, start time.Time, end time.Time) ([]models.Allocation, error) {
	rows, err := r.db.Query(ctx, `
		SELECT a.allocation_id, a.resource_id, a.project_id, a.start_date, a.end_date,
			COALESCE(a.allocated_hours, 0)::float8, a.weekly_allocations, a.status
		FROM allocations a
		JOIN resources r ON r.resource_id = a.resource_id
		WHERE ($1 = '' OR r.department = $1)
			AND a.start_date <= $3
			AND a.end_date >= $2
		ORDER BY a.resource_id, a.start_date, a.allocation_id
	`, strings.TrimSpace(department), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Allocation
	for rows.Next() {
		var (
			a      models.Allocation
			weekly []byte
			status string
		)
		if err := rows.Scan(&a.ID, &a.ResourceID, &a.ProjectID, &a.StartDate, &a.EndDate, &a.AllocatedHours, &weekly, &status); err != nil {
			return nil, err
		}
		a.Status = models.ParseAllocationStatus(status)
		a.Weekly, a.WeekKeyAnomalies = decodeWeekly(weekly, a.StartDate, a.EndDate)
		out = append(out, a)
	}
	return out, rows.Err()
}

// decodeWeekly turns the stored jsonb week map into canonical week keys.
// Values that are not numbers become anomalies alongside the key problems
// found by normalization.
func decodeWeekly(raw []byte, start time.Time, end time.Time) (models.WeeklyHours, []models.WeekKeyAnomaly) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var entries map[string]any
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, []models.WeekKeyAnomaly{{Key: "*", Reason: fmt.Sprintf("weekly allocations are not an object: %v", err)}}
	}

	numeric := make(map[string]float64, len(entries))
	var bad []models.WeekKeyAnomaly
	for k, v := range entries {
		switch t := v.(type) {
		case float64:
			numeric[k] = t
		case string:
			f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
			if err != nil {
				bad = append(bad, models.WeekKeyAnomaly{Key: k, Reason: fmt.Sprintf("hours %q are not numeric", t)})
				continue
			}
			numeric[k] = f
		default:
			bad = append(bad, models.WeekKeyAnomaly{Key: k, Reason: fmt.Sprintf("hours of type %T are not numeric", v)})
		}
	}

	weekly, anomalies := models.NormalizeWeeklyHours(numeric, start, end)
	anomalies = append(anomalies, bad...)
	sortAnomalies(anomalies)
	return weekly, anomalies
}

func sortAnomalies(a []models.WeekKeyAnomaly) {
	sort.SliceStable(a, func(i, j int) bool { return a[i].Key < a[j].Key })
}

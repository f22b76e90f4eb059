package repos

import (
	"context"

	"resource-planning-system/api/internal/models"
)

type ProjectsRepo struct {
	db DBTX
}

func NewProjectsRepo(db DBTX) *ProjectsRepo {
	return &ProjectsRepo{db: db}
}

func (r *ProjectsRepo) List(ctx context.Context) ([]models.Project, error) {
	rows, err := r.db.Query(ctx, `
		SELECT project_id, name, COALESCE(priority, 'medium'), COALESCE(status, 'active')
		FROM projects
		ORDER BY name, project_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Project
	for rows.Next() {
		var (
			p        models.Project
			priority string
			status   string
		)
		if err := rows.Scan(&p.ID, &p.Name, &priority, &status); err != nil {
			return nil, err
		}
		p.Priority = models.ProjectPriority(priority)
		p.Status = models.ProjectStatus(status)
		out = append(out, p)
	}
	return out, rows.Err()
}

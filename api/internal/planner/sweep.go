package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/capacity"
	"resource-planning-system/shared/events"
	"resource-planning-system/shared/influxx"
	"resource-planning-system/shared/metricsx"
)

// SweepReport summarises one background evaluation.
type SweepReport struct {
	Department      string                    `json:"department"`
	StartDate       string                    `json:"startDate"`
	EndDate         string                    `json:"endDate"`
	Evaluated       int                       `json:"evaluated"`
	Excluded        int                       `json:"excluded"`
	Counts          map[capacity.Category]int `json:"counts"`
	AlertsPublished int                       `json:"alertsPublished"`
	PointsWritten   int                       `json:"pointsWritten"`
	SinkErrors      int                       `json:"sinkErrors"`
}

// Sweep evaluates the current month for department (empty for all) and fans
// the result out: utilization points to InfluxDB, one event per critical
// resource plus a completion event to Kafka, per-category gauges, and a
// refreshed alerts cache entry. Only a failed snapshot load is an error; sink
// failures are logged and counted in the report.
func (s *Service) Sweep(ctx context.Context, department string) (SweepReport, error) {
	sc := s.resolveScope(ctx, Query{Department: department})
	_, ev, err := s.evaluate(ctx, "sweep", &sc)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{
		Department: sc.meta.Department,
		StartDate:  sc.meta.StartDate,
		EndDate:    sc.meta.EndDate,
		Evaluated:  len(ev.Results),
		Excluded:   len(ev.Excluded),
		Counts:     make(map[capacity.Category]int, len(capacity.AlertCategories())+1),
	}
	for _, c := range ev.Categories {
		report.Counts[c.Type] = c.Count
		metricsx.SetAlertResources(sc.department, string(c.Type), c.Count)
	}
	report.Counts[capacity.CategoryHealthy] = len(ev.Healthy)
	metricsx.SetAlertResources(sc.department, string(capacity.CategoryHealthy), len(ev.Healthy))

	now := s.now()
	if s.points != nil {
		samples := s.samples(ev)
		if err := s.points.WriteUtilization(ctx, samples, now); err != nil {
			report.SinkErrors++
			metricsx.IncInfluxWriteFailure()
			s.logger.Error(ctx, "utilization_write_failed", "failed to write utilization points", slog.String("error", err.Error()))
		} else {
			report.PointsWritten = len(samples)
		}
	}

	if s.publisher != nil {
		published, failed := s.publishAlerts(ctx, sc, ev)
		report.AlertsPublished = published
		report.SinkErrors += failed
		if err := s.publishCompletion(ctx, report); err != nil {
			report.SinkErrors++
			s.logger.Error(ctx, "sweep_event_publish_failed", "failed to publish sweep completion", slog.String("error", err.Error()))
		}
	}

	s.storeAlerts(ctx, s.alertsKey(ctx, sc), AlertsResponse{Categories: ev.Categories, Summary: ev.Summary, Metadata: sc.meta})

	s.logger.Info(ctx, "capacity_sweep_completed", "capacity sweep completed",
		slog.String("department", report.Department),
		slog.String("period", sc.period.String()),
		slog.Int("evaluated", report.Evaluated),
		slog.Int("critical", report.Counts[capacity.CategoryCritical]),
		slog.Int("sink_errors", report.SinkErrors),
	)
	return report, nil
}

func (s *Service) samples(ev capacity.Evaluation) []influxx.UtilizationSample {
	out := make([]influxx.UtilizationSample, 0, len(ev.Results))
	for _, r := range ev.Results {
		cat, ok := ev.CategoryOf(r.ResourceID)
		if !ok {
			continue
		}
		out = append(out, influxx.UtilizationSample{
			ResourceID:        r.ResourceID.String(),
			Department:        r.Department,
			Role:              r.Role,
			Category:          string(cat),
			Policy:            string(ev.Policy),
			AllocatedHours:    r.AllocatedHours,
			EffectiveCapacity: r.EffectiveCapacity,
			AvailableHours:    r.AvailableHours,
			UtilizationPct:    r.UtilizationPct,
		})
	}
	return out
}

func (s *Service) publishAlerts(ctx context.Context, sc scope, ev capacity.Evaluation) (int, int) {
	bucket := ev.Bucket(capacity.CategoryCritical)
	published, failed := 0, 0
	for _, r := range bucket.Resources {
		env, err := events.New(events.AggregateResource, r.ResourceID, events.EventCapacityAlertRaised, events.CapacityAlert{
			ResourceID:     r.ResourceID,
			ResourceName:   r.ResourceName,
			Department:     r.Department,
			Category:       string(bucket.Type),
			Severity:       string(bucket.Severity),
			UtilizationPct: r.UtilizationPct,
			AllocatedHours: r.AllocatedHours,
			EffectiveHours: r.EffectiveCapacity,
			PeriodStart:    sc.meta.StartDate,
			PeriodEnd:      sc.meta.EndDate,
		}, s.now())
		if err == nil {
			err = s.publisher.PublishEvent(ctx, events.TopicCapacityAlerts, r.ResourceID.String(), env)
		}
		if err != nil {
			failed++
			s.logger.Error(ctx, "capacity_alert_publish_failed", "failed to publish capacity alert",
				slog.String("resource_id", r.ResourceID.String()),
				slog.String("error", err.Error()),
			)
			continue
		}
		published++
	}
	return published, failed
}

func (s *Service) publishCompletion(ctx context.Context, report SweepReport) error {
	counts := make(map[string]int, len(report.Counts))
	for k, v := range report.Counts {
		counts[string(k)] = v
	}
	env, err := events.New(events.AggregateDepartment, departmentID(report.Department), events.EventSweepCompleted, events.SweepCompleted{
		Department:  report.Department,
		PeriodStart: report.StartDate,
		PeriodEnd:   report.EndDate,
		Evaluated:   report.Evaluated,
		Excluded:    report.Excluded,
		Counts:      counts,
	}, s.now())
	if err != nil {
		return err
	}
	return s.publisher.PublishEvent(ctx, events.TopicCapacitySweeps, report.Department, env)
}

// departmentID gives departments, which have no table of their own, a stable
// aggregate id.
func departmentID(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("department:"+name))
}

// SweepAll sweeps each department in turn and joins the failures.
func (s *Service) SweepAll(ctx context.Context, departments []string) ([]SweepReport, error) {
	if len(departments) == 0 {
		known, err := s.source.Departments(ctx)
		if err != nil {
			return nil, fmt.Errorf("list departments: %w", err)
		}
		departments = known
	}
	reports := make([]SweepReport, 0, len(departments))
	var errs []error
	for _, d := range departments {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		r, err := s.Sweep(ctx, d)
		if err != nil {
			errs = append(errs, fmt.Errorf("sweep %s: %w", d, err))
			continue
		}
		reports = append(reports, r)
	}
	return reports, errors.Join(errs...)
}

// Departments lists the departments known to the source.
func (s *Service) Departments(ctx context.Context) ([]string, error) {
	return s.source.Departments(ctx)
}

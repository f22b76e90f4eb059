package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/capacity"
	"resource-planning-system/api/internal/models"
	"resource-planning-system/shared/events"
	"resource-planning-system/shared/influxx"
	"resource-planning-system/shared/logx"
	"resource-planning-system/shared/metricsx"
)

var ErrResourceNotFound = errors.New("resource not found")

// SnapshotSource loads planning data. Implemented by repos.SnapshotRepo.
type SnapshotSource interface {
	LoadSnapshot(ctx context.Context, department string, period capacity.Period) (capacity.Snapshot, error)
	Departments(ctx context.Context) ([]string, error)
	// Resource reports false when no row exists for id.
	Resource(ctx context.Context, id uuid.UUID) (models.Resource, bool, error)
}

// Cache is the subset of cachex.Client the service uses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
	GetInt64(ctx context.Context, key string) (int64, error)
}

type Publisher interface {
	PublishEvent(ctx context.Context, topic string, key string, env events.Envelope) error
}

type PointWriter interface {
	WriteUtilization(ctx context.Context, samples []influxx.UtilizationSample, ts time.Time) error
}

// Deps wires a Service. Only Source is required; the rest degrade to no-ops
// when left nil.
type Deps struct {
	Source    SnapshotSource
	Cache     Cache
	Publisher Publisher
	Points    PointWriter
	Logger    logx.Logger
	Options   capacity.Options
	CacheTTL  time.Duration
	Now       func() time.Time
}

type Service struct {
	source    SnapshotSource
	cache     Cache
	publisher Publisher
	points    PointWriter
	logger    logx.Logger
	opts      capacity.Options
	cacheTTL  time.Duration
	now       func() time.Time
}

func New(d Deps) *Service {
	opts := d.Options
	if p, ok := capacity.ParseWeekPolicy(string(opts.Policy)); ok {
		opts.Policy = p
	} else {
		opts.Policy = capacity.WeekPolicyOverlap
	}
	if opts.StandardWeeklyHours <= 0 {
		opts.StandardWeeklyHours = capacity.DefaultStandardWeeklyHours
	}
	if opts.MaxSuggestions <= 0 {
		opts.MaxSuggestions = capacity.DefaultMaxSuggestions
	}
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		source:    d.Source,
		cache:     d.Cache,
		publisher: d.Publisher,
		points:    d.Points,
		logger:    d.Logger,
		opts:      opts,
		cacheTTL:  d.CacheTTL,
		now:       now,
	}
}

func (s *Service) Options() capacity.Options { return s.opts }

type AlertsResponse struct {
	Categories []capacity.AlertCategory `json:"categories"`
	Summary    capacity.Summary         `json:"summary"`
	Metadata   Metadata                 `json:"metadata"`
}

type KPIResponse struct {
	capacity.KPIs
	Metadata Metadata `json:"metadata"`
}

type UtilizationRow struct {
	capacity.UtilizationResult
	Category capacity.Category `json:"category"`
	Severity capacity.Severity `json:"severity"`
}

type UtilizationResponse struct {
	Resources []UtilizationRow     `json:"resources"`
	Excluded  []capacity.Exclusion `json:"excluded"`
	Metadata  Metadata             `json:"metadata"`
}

type ResolveResponse struct {
	ResourceID  uuid.UUID                       `json:"resourceId"`
	Utilization *capacity.UtilizationResult     `json:"utilization,omitempty"`
	Category    capacity.Category               `json:"category,omitempty"`
	Suggestions []capacity.ResolutionSuggestion `json:"suggestions"`
	Metadata    Metadata                        `json:"metadata"`
}

type SimulateRequest struct {
	Query
	Deltas []capacity.AllocationDelta `json:"deltas"`
}

type SimulateResponse struct {
	capacity.SimulationResult
	Metadata Metadata `json:"metadata"`
}

// load reads rows touching the policy window, which under the overlap
// policy reaches past the period to whole weeks, and keeps the requested
// period on the snapshot.
func (s *Service) load(ctx context.Context, department string, period capacity.Period) (capacity.Snapshot, error) {
	snap, err := s.source.LoadSnapshot(ctx, department, s.opts.Policy.Window(period))
	if err != nil {
		return capacity.Snapshot{}, fmt.Errorf("load snapshot: %w", err)
	}
	snap.Period = period
	return snap, nil
}

// evaluate loads the snapshot for sc and runs the engine, logging and
// counting anything the engine had to leave out.
func (s *Service) evaluate(ctx context.Context, op string, sc *scope) (capacity.Snapshot, capacity.Evaluation, error) {
	start := s.now()
	snap, err := s.load(ctx, sc.department, sc.period)
	if err != nil {
		return capacity.Snapshot{}, capacity.Evaluation{}, err
	}
	ev := capacity.Evaluate(snap, s.opts)
	metricsx.ObserveEvaluation(op, s.now().Sub(start))
	s.report(ctx, sc, ev)
	return snap, ev, nil
}

func (s *Service) report(ctx context.Context, sc *scope, ev capacity.Evaluation) {
	sc.meta.Anomalies = len(ev.Anomalies)
	sc.meta.Excluded = len(ev.Excluded)
	metricsx.AddWeekKeyAnomalies(len(ev.Anomalies))
	metricsx.AddExcludedResources(len(ev.Excluded))
	for _, a := range ev.Anomalies {
		s.logger.Warn(ctx, "allocation_anomaly", "allocation data skipped",
			slog.String("allocation_id", a.AllocationID.String()),
			slog.String("resource_id", a.ResourceID.String()),
			slog.String("key", a.Key),
			slog.String("reason", a.Reason),
		)
	}
	for _, e := range ev.Excluded {
		s.logger.Warn(ctx, "utilization_excluded", "resource excluded from categorization",
			slog.String("resource_id", e.ResourceID.String()),
			slog.String("reason", e.Reason),
		)
	}
	if n := len(ev.Fallbacks); n > 0 {
		s.logger.Info(ctx, "capacity_fallback", "standard weekly capacity applied", slog.Int("resources", n))
	}
}

func (s *Service) Alerts(ctx context.Context, q Query) (AlertsResponse, error) {
	sc := s.resolveScope(ctx, q)
	key := s.alertsKey(ctx, sc)

	if key != "" {
		var cached AlertsResponse
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Warn(ctx, "alerts_cache_read_failed", "alerts cache unavailable", slog.String("error", err.Error()))
		}
		metricsx.IncAlertCache(hit)
		if hit {
			cached.Metadata.Cached = true
			cached.Metadata.Fallbacks = sc.meta.Fallbacks
			return cached, nil
		}
	}

	_, ev, err := s.evaluate(ctx, "alerts", &sc)
	if err != nil {
		return AlertsResponse{}, err
	}
	resp := AlertsResponse{Categories: ev.Categories, Summary: ev.Summary, Metadata: sc.meta}
	s.storeAlerts(ctx, key, resp)
	return resp, nil
}

func (s *Service) KPIs(ctx context.Context, q Query) (KPIResponse, error) {
	sc := s.resolveScope(ctx, q)
	snap, ev, err := s.evaluate(ctx, "kpis", &sc)
	if err != nil {
		return KPIResponse{}, err
	}
	return KPIResponse{KPIs: capacity.ComputeKPIs(ev, snap.Projects), Metadata: sc.meta}, nil
}

func (s *Service) Utilization(ctx context.Context, q Query) (UtilizationResponse, error) {
	sc := s.resolveScope(ctx, q)
	_, ev, err := s.evaluate(ctx, "utilization", &sc)
	if err != nil {
		return UtilizationResponse{}, err
	}
	resp := UtilizationResponse{
		Resources: make([]UtilizationRow, 0, len(ev.Results)),
		Excluded:  ev.Excluded,
		Metadata:  sc.meta,
	}
	if resp.Excluded == nil {
		resp.Excluded = []capacity.Exclusion{}
	}
	for _, r := range ev.Results {
		cat, ok := ev.CategoryOf(r.ResourceID)
		if !ok {
			continue
		}
		resp.Resources = append(resp.Resources, UtilizationRow{UtilizationResult: r, Category: cat, Severity: cat.Severity()})
	}
	return resp, nil
}

// Resolve suggests fixes for one resource. Peers may sit in other
// departments when they share the role, so the snapshot always spans every
// department and the department filter is not applied.
func (s *Service) Resolve(ctx context.Context, resourceID uuid.UUID, q Query) (ResolveResponse, error) {
	res, ok, err := s.source.Resource(ctx, resourceID)
	if err != nil {
		return ResolveResponse{}, fmt.Errorf("load resource: %w", err)
	}
	if !ok || !res.Active {
		return ResolveResponse{}, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}

	sc := s.resolveScope(ctx, Query{StartDate: q.StartDate, EndDate: q.EndDate})
	snap, ev, err := s.evaluate(ctx, "resolve", &sc)
	if err != nil {
		return ResolveResponse{}, err
	}
	if _, ok := snap.Resource(resourceID); !ok {
		return ResolveResponse{}, fmt.Errorf("%w: %s", ErrResourceNotFound, resourceID)
	}
	sc.meta.Department = displayDepartment(res.Department)

	resp := ResolveResponse{ResourceID: resourceID, Suggestions: []capacity.ResolutionSuggestion{}, Metadata: sc.meta}
	target, ok := ev.Result(resourceID)
	if !ok {
		// Excluded by the engine; nothing reliable to suggest.
		return resp, nil
	}
	resp.Utilization = &target
	resp.Category, _ = ev.CategoryOf(resourceID)

	suggestions, err := capacity.Suggest(target, snap.Allocations, ev.Results, snap.ProjectIndex(), capacity.ResolveOptions{
		Period:         sc.period,
		Policy:         s.opts.Policy,
		MaxSuggestions: s.opts.MaxSuggestions,
	})
	if err != nil && !errors.Is(err, capacity.ErrNotOverallocated) {
		return ResolveResponse{}, fmt.Errorf("suggest: %w", err)
	}
	if len(suggestions) > 0 {
		resp.Suggestions = suggestions
	}
	return resp, nil
}

// Simulate previews deltas against the current data. Nothing is persisted.
// With a department filter, resources outside it that a delta names (such as
// a cross-department reassign target from Resolve) are brought into scope.
func (s *Service) Simulate(ctx context.Context, req SimulateRequest) (SimulateResponse, error) {
	sc := s.resolveScope(ctx, req.Query)
	start := s.now()
	snap, err := s.simulationSnapshot(ctx, sc, req.Deltas)
	if err != nil {
		return SimulateResponse{}, err
	}
	res := capacity.Simulate(snap, req.Deltas, s.opts)
	metricsx.ObserveEvaluation("simulate", s.now().Sub(start))
	metricsx.AddRejectedDeltas(len(res.Rejected))
	for _, r := range res.Rejected {
		s.logger.Info(ctx, "simulation_delta_rejected", "simulation delta rejected",
			slog.Int("index", r.Index),
			slog.String("kind", string(r.Delta.Kind)),
			slog.String("reason", r.Reason),
		)
	}
	sc.meta.Excluded = len(res.Excluded)
	return SimulateResponse{SimulationResult: res, Metadata: sc.meta}, nil
}

func (s *Service) simulationSnapshot(ctx context.Context, sc scope, deltas []capacity.AllocationDelta) (capacity.Snapshot, error) {
	if sc.department == "" {
		return s.load(ctx, "", sc.period)
	}
	named := make(map[uuid.UUID]struct{})
	for _, d := range deltas {
		for _, id := range []uuid.UUID{d.ResourceID, d.TargetResourceID} {
			if id != uuid.Nil {
				named[id] = struct{}{}
			}
		}
	}
	if len(named) == 0 {
		return s.load(ctx, sc.department, sc.period)
	}

	full, err := s.load(ctx, "", sc.period)
	if err != nil {
		return capacity.Snapshot{}, err
	}
	return scopeSnapshot(full, sc.department, named), nil
}

// scopeSnapshot keeps the department's resources plus the extra ones, with
// their allocations and time off.
func scopeSnapshot(full capacity.Snapshot, department string, extra map[uuid.UUID]struct{}) capacity.Snapshot {
	out := capacity.Snapshot{Period: full.Period, Projects: full.Projects}
	keep := make(map[uuid.UUID]struct{})
	for _, r := range full.Resources {
		_, named := extra[r.ID]
		if named || strings.EqualFold(r.Department, department) {
			keep[r.ID] = struct{}{}
			out.Resources = append(out.Resources, r)
		}
	}
	for _, a := range full.Allocations {
		if _, ok := keep[a.ResourceID]; ok {
			out.Allocations = append(out.Allocations, a)
		}
	}
	for _, t := range full.TimeOff {
		if _, ok := keep[t.ResourceID]; ok {
			out.TimeOff = append(out.TimeOff, t)
		}
	}
	return out
}

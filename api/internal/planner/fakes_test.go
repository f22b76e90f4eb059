package planner

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/capacity"
	"resource-planning-system/api/internal/models"
	"resource-planning-system/shared/events"
	"resource-planning-system/shared/influxx"
	"resource-planning-system/shared/logx"
)

var fixedNow = time.Date(2025, 7, 15, 10, 0, 0, 0, time.UTC)

func id(name string) uuid.UUID {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(name))
}

func wk(week int) models.WeekKey {
	return models.WeekKey{Year: 2025, Week: week}
}

type fakeSource struct {
	resources   []models.Resource
	allocations []models.Allocation
	timeOff     []models.TimeOff
	projects    []models.Project
	err         error
	loads       int
	lookups     int
	lastDept    string
	lastPeriod  capacity.Period
}

func (f *fakeSource) LoadSnapshot(ctx context.Context, department string, period capacity.Period) (capacity.Snapshot, error) {
	f.loads++
	f.lastDept = department
	f.lastPeriod = period
	if f.err != nil {
		return capacity.Snapshot{}, f.err
	}
	snap := capacity.Snapshot{Period: period, Projects: f.projects}
	keep := map[uuid.UUID]bool{}
	for _, r := range f.resources {
		if department == "" || r.Department == department {
			snap.Resources = append(snap.Resources, r)
			keep[r.ID] = true
		}
	}
	for _, a := range f.allocations {
		if keep[a.ResourceID] {
			snap.Allocations = append(snap.Allocations, a.Clone())
		}
	}
	for _, t := range f.timeOff {
		if keep[t.ResourceID] {
			snap.TimeOff = append(snap.TimeOff, t)
		}
	}
	return snap, nil
}

func (f *fakeSource) Resource(ctx context.Context, rid uuid.UUID) (models.Resource, bool, error) {
	f.lookups++
	if f.err != nil {
		return models.Resource{}, false, f.err
	}
	for _, r := range f.resources {
		if r.ID == rid {
			return r, true, nil
		}
	}
	return models.Resource{}, false, nil
}

func (f *fakeSource) Departments(ctx context.Context) ([]string, error) {
	seen := map[string]bool{}
	var out []string
	for _, r := range f.resources {
		if !seen[r.Department] {
			seen[r.Department] = true
			out = append(out, r.Department)
		}
	}
	return out, nil
}

type fakeCache struct {
	mu      sync.Mutex
	values  map[string][]byte
	counter map[string]int64
	failGet bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: map[string][]byte{}, counter: map[string]int64{}}
}

func (c *fakeCache) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return false, errors.New("redis down")
	}
	raw, ok := c.values[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dest)
}

func (c *fakeCache) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *fakeCache) Incr(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counter[key]++
	return c.counter[key], nil
}

func (c *fakeCache) GetInt64(ctx context.Context, key string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.failGet {
		return 0, errors.New("redis down")
	}
	return c.counter[key], nil
}

type published struct {
	topic string
	key   string
	env   events.Envelope
}

type fakePublisher struct {
	sent []published
	err  error
}

func (p *fakePublisher) PublishEvent(ctx context.Context, topic string, key string, env events.Envelope) error {
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, key: key, env: env})
	return nil
}

type fakePoints struct {
	samples []influxx.UtilizationSample
	err     error
}

func (p *fakePoints) WriteUtilization(ctx context.Context, samples []influxx.UtilizationSample, ts time.Time) error {
	if p.err != nil {
		return p.err
	}
	p.samples = append(p.samples, samples...)
	return nil
}

func resource(name string, department string, role string) models.Resource {
	return models.Resource{ID: id(name), Name: name, Department: department, Role: role, WeeklyCapacity: 40, Active: true}
}

func weekly(name string, r models.Resource, project uuid.UUID, hours map[models.WeekKey]float64) models.Allocation {
	var first, last models.WeekKey
	for k := range hours {
		if first.Year == 0 || k.Before(first) {
			first = k
		}
		if last.Year == 0 || last.Before(k) {
			last = k
		}
	}
	return models.Allocation{
		ID:         id(name),
		ResourceID: r.ID,
		ProjectID:  project,
		StartDate:  first.Start(),
		EndDate:    last.End(),
		Weekly:     models.WeeklyHours(hours),
		Status:     models.AllocationStatusActive,
	}
}

// fixture: alice is 150% booked in W29, bob has room in the same team and
// carol in design has nothing.
func fixture() *fakeSource {
	alice := resource("alice", "engineering", "developer")
	bob := resource("bob", "engineering", "developer")
	carol := resource("carol", "design", "designer")
	return &fakeSource{
		resources: []models.Resource{alice, bob, carol},
		allocations: []models.Allocation{
			weekly("alice-1", alice, id("apollo"), map[models.WeekKey]float64{wk(29): 60}),
			weekly("bob-1", bob, id("apollo"), map[models.WeekKey]float64{wk(29): 10}),
		},
		projects: []models.Project{
			{ID: id("apollo"), Name: "Apollo", Priority: models.ProjectPriorityLow, Status: models.ProjectStatusActive},
			{ID: id("gemini"), Name: "Gemini", Priority: models.ProjectPriorityHigh, Status: models.ProjectStatusOnHold},
		},
	}
}

func newService(src *fakeSource, cache Cache, pub Publisher, points PointWriter) *Service {
	return New(Deps{
		Source:    src,
		Cache:     cache,
		Publisher: pub,
		Points:    points,
		Logger:    logx.Nop(),
		Options:   capacity.DefaultOptions(),
		CacheTTL:  time.Minute,
		Now:       func() time.Time { return fixedNow },
	})
}

var w29 = Query{StartDate: "2025-07-14", EndDate: "2025-07-20"}

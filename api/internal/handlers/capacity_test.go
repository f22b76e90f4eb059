package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resource-planning-system/api/internal/capacity"
	"resource-planning-system/api/internal/planner"
	"resource-planning-system/shared/httpx"
	"resource-planning-system/shared/logx"
)

type stubPlanner struct {
	lastQuery   planner.Query
	lastID      uuid.UUID
	lastRequest planner.SimulateRequest
	err         error
}

func (s *stubPlanner) Alerts(ctx context.Context, q planner.Query) (planner.AlertsResponse, error) {
	s.lastQuery = q
	if s.err != nil {
		return planner.AlertsResponse{}, s.err
	}
	return planner.AlertsResponse{
		Categories: []capacity.AlertCategory{},
		Summary:    capacity.Summary{TotalAlerts: 1, CriticalCount: 1},
		Metadata:   planner.Metadata{Department: "all", StartDate: "2025-07-01", EndDate: "2025-07-31"},
	}, nil
}

func (s *stubPlanner) KPIs(ctx context.Context, q planner.Query) (planner.KPIResponse, error) {
	s.lastQuery = q
	return planner.KPIResponse{KPIs: capacity.KPIs{ActiveProjects: 2, Utilization: 80}}, s.err
}

func (s *stubPlanner) Utilization(ctx context.Context, q planner.Query) (planner.UtilizationResponse, error) {
	s.lastQuery = q
	return planner.UtilizationResponse{Resources: []planner.UtilizationRow{}, Excluded: []capacity.Exclusion{}}, s.err
}

func (s *stubPlanner) Resolve(ctx context.Context, id uuid.UUID, q planner.Query) (planner.ResolveResponse, error) {
	s.lastID = id
	s.lastQuery = q
	if s.err != nil {
		return planner.ResolveResponse{}, s.err
	}
	return planner.ResolveResponse{ResourceID: id, Suggestions: []capacity.ResolutionSuggestion{}}, nil
}

func (s *stubPlanner) Simulate(ctx context.Context, req planner.SimulateRequest) (planner.SimulateResponse, error) {
	s.lastRequest = req
	return planner.SimulateResponse{}, s.err
}

func serve(t *testing.T, p Planner, method string, target string, body string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	CapacityHandler{Planner: p, Logger: logx.Nop()}.Register(mux)
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rr := httptest.NewRecorder()
	httpx.WithRequestID(mux).ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var env httpx.ErrorEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.NotEmpty(t, env.Error.RequestID)
	return env.Error.Code
}

func TestAlertsPassesQuery(t *testing.T) {
	p := &stubPlanner{}
	rr := serve(t, p, http.MethodGet, "/api/v1/capacity/alerts?department=engineering&startDate=2025-07-14&endDate=2025-07-20", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, planner.Query{Department: "engineering", StartDate: "2025-07-14", EndDate: "2025-07-20"}, p.lastQuery)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "categories")
	assert.Equal(t, float64(1), body["summary"].(map[string]any)["criticalCount"])
}

func TestKPIsAndUtilization(t *testing.T) {
	p := &stubPlanner{}
	rr := serve(t, p, http.MethodGet, "/api/v1/capacity/kpis", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"activeProjects":2`)

	rr = serve(t, p, http.MethodGet, "/api/v1/capacity/utilization?department=%20design%20", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "design", p.lastQuery.Department)
}

func TestResolutions(t *testing.T) {
	p := &stubPlanner{}
	id := uuid.New()
	rr := serve(t, p, http.MethodGet, "/api/v1/capacity/resources/"+id.String()+"/resolutions", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, id, p.lastID)
	assert.Contains(t, rr.Body.String(), `"suggestions":[]`)

	rr = serve(t, p, http.MethodGet, "/api/v1/capacity/resources/not-a-uuid/resolutions", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, rr))
}

func TestResolutionsNotFound(t *testing.T) {
	p := &stubPlanner{err: fmt.Errorf("%w: x", planner.ErrResourceNotFound)}
	rr := serve(t, p, http.MethodGet, "/api/v1/capacity/resources/"+uuid.NewString()+"/resolutions", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rr))
}

func TestSimulateDecodesDeltas(t *testing.T) {
	p := &stubPlanner{}
	alloc := uuid.New()
	body := fmt.Sprintf(`{"startDate":"2025-07-14","deltas":[{"kind":"adjust","allocationId":%q,"deltaHours":-8}]}`, alloc)
	rr := serve(t, p, http.MethodPost, "/api/v1/capacity/simulations", body)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2025-07-14", p.lastRequest.StartDate)
	require.Len(t, p.lastRequest.Deltas, 1)
	assert.Equal(t, capacity.DeltaAdjust, p.lastRequest.Deltas[0].Kind)
	assert.Equal(t, alloc, p.lastRequest.Deltas[0].AllocationID)
	assert.InDelta(t, -8, p.lastRequest.Deltas[0].DeltaHours, 1e-9)
}

func TestSimulateRejectsBadBodies(t *testing.T) {
	cases := map[string]string{
		"malformed":     `{"deltas":`,
		"unknown field": `{"delta":[]}`,
		"trailing":      `{} {}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serve(t, &stubPlanner{}, http.MethodPost, "/api/v1/capacity/simulations", body)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			assert.Equal(t, "INVALID_ARGUMENT", errorCode(t, rr))
		})
	}

	deltas := make([]string, MaxSimulationDeltas+1)
	for i := range deltas {
		deltas[i] = `{"kind":"remove","allocationId":"` + uuid.NewString() + `"}`
	}
	rr := serve(t, &stubPlanner{}, http.MethodPost, "/api/v1/capacity/simulations", `{"deltas":[`+strings.Join(deltas, ",")+`]}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestInternalErrorsAreMasked(t *testing.T) {
	p := &stubPlanner{err: errors.New("load snapshot: connection refused")}
	rr := serve(t, p, http.MethodGet, "/api/v1/capacity/alerts", "")
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.Equal(t, "INTERNAL_ERROR", errorCode(t, rr))
	assert.NotContains(t, rr.Body.String(), "connection refused")

	p.err = fmt.Errorf("load snapshot: %w", context.DeadlineExceeded)
	rr = serve(t, p, http.MethodGet, "/api/v1/capacity/kpis", "")
	assert.Equal(t, http.StatusGatewayTimeout, rr.Code)
}

func TestMethodMismatch(t *testing.T) {
	rr := serve(t, &stubPlanner{}, http.MethodPost, "/api/v1/capacity/alerts", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"resource-planning-system/api/internal/planner"
	"resource-planning-system/shared/httpx"
	"resource-planning-system/shared/logx"
)

// MaxSimulationDeltas bounds a single simulation request.
const MaxSimulationDeltas = 500

// Planner is the read side the capacity routes expose.
type Planner interface {
	Alerts(ctx context.Context, q planner.Query) (planner.AlertsResponse, error)
	KPIs(ctx context.Context, q planner.Query) (planner.KPIResponse, error)
	Utilization(ctx context.Context, q planner.Query) (planner.UtilizationResponse, error)
	Resolve(ctx context.Context, resourceID uuid.UUID, q planner.Query) (planner.ResolveResponse, error)
	Simulate(ctx context.Context, req planner.SimulateRequest) (planner.SimulateResponse, error)
}

type CapacityHandler struct {
	Planner Planner
	Logger  logx.Logger
}

func (h CapacityHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/capacity/alerts", h.alerts)
	mux.HandleFunc("GET /api/v1/capacity/kpis", h.kpis)
	mux.HandleFunc("GET /api/v1/capacity/utilization", h.utilization)
	mux.HandleFunc("GET /api/v1/capacity/resources/{resourceID}/resolutions", h.resolutions)
	mux.HandleFunc("POST /api/v1/capacity/simulations", h.simulate)
}

func queryFrom(r *http.Request) planner.Query {
	v := r.URL.Query()
	return planner.Query{
		Department: strings.TrimSpace(v.Get("department")),
		StartDate:  strings.TrimSpace(v.Get("startDate")),
		EndDate:    strings.TrimSpace(v.Get("endDate")),
	}
}

func (h CapacityHandler) alerts(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Planner.Alerts(r.Context(), queryFrom(r))
	if err != nil {
		h.fail(w, r, "alerts", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h CapacityHandler) kpis(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Planner.KPIs(r.Context(), queryFrom(r))
	if err != nil {
		h.fail(w, r, "kpis", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h CapacityHandler) utilization(w http.ResponseWriter, r *http.Request) {
	resp, err := h.Planner.Utilization(r.Context(), queryFrom(r))
	if err != nil {
		h.fail(w, r, "utilization", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h CapacityHandler) resolutions(w http.ResponseWriter, r *http.Request) {
	resourceID, err := uuid.Parse(r.PathValue("resourceID"))
	if err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid resource id", map[string]any{"resourceId": r.PathValue("resourceID")})
		return
	}
	resp, err := h.Planner.Resolve(r.Context(), resourceID, queryFrom(r))
	if err != nil {
		h.fail(w, r, "resolve", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h CapacityHandler) simulate(w http.ResponseWriter, r *http.Request) {
	var req planner.SimulateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "malformed simulation request", map[string]any{"reason": err.Error()})
		return
	}
	if len(req.Deltas) > MaxSimulationDeltas {
		httpx.WriteError(w, r, http.StatusBadRequest, "INVALID_ARGUMENT", "too many deltas", map[string]any{"max": MaxSimulationDeltas, "got": len(req.Deltas)})
		return
	}
	resp, err := h.Planner.Simulate(r.Context(), req)
	if err != nil {
		h.fail(w, r, "simulate", err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (h CapacityHandler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, planner.ErrResourceNotFound):
		httpx.WriteError(w, r, http.StatusNotFound, "NOT_FOUND", "resource not found", nil)
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(w, r, http.StatusGatewayTimeout, "TIMEOUT", "request timeout", nil)
	default:
		h.Logger.Error(r.Context(), "capacity_request_failed", "capacity request failed",
			slog.String("request_id", httpx.RequestIDFromContext(r.Context())),
			slog.String("operation", op),
			slog.String("error_code", "INTERNAL_ERROR"),
			slog.String("error", err.Error()),
		)
		httpx.WriteError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "capacity evaluation failed", nil)
	}
}

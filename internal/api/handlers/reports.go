// Package handlers contains the HTTP handler implementations for the
// swellcast API: report serving, history, and the authenticated
// administrative operations (warm refresh, cache clear, report save).
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"swellcast/internal/core"
	"swellcast/internal/types"
)

const (
	defaultHistoryLimit = 10
	maxHistoryLimit     = 50
)

// ReportService is the orchestration contract the handler depends on.
// Implemented by reports.Service; stubbed in tests.
type ReportService interface {
	GetCurrent(ctx context.Context, location string) (*types.Report, types.ServeMeta, error)
	History(ctx context.Context, location string, limit int) ([]types.Report, error)
	ForceRefresh(ctx context.Context, location string) (*types.RefreshResult, error)
	ClearCache(ctx context.Context, location string) (int, error)
	SaveReport(ctx context.Context, report *types.Report) error
	Location() string
}

// SaveReportRequest is the request body for POST /v1/report. ID, location,
// timestamp, and cached_until are optional; the service fills defaults and
// enforces cached_until > timestamp.
type SaveReportRequest struct {
	ID              string                  `json:"id,omitempty"`
	Location        string                  `json:"location,omitempty" validate:"omitempty,max=100"`
	Timestamp       time.Time               `json:"timestamp,omitempty"`
	Narrative       string                  `json:"narrative" validate:"required"`
	Conditions      types.ConditionSnapshot `json:"conditions" validate:"required"`
	Recommendations types.RecommendationSet `json:"recommendations"`
	CachedUntil     time.Time               `json:"cached_until,omitempty"`
}

// ClearCacheResponse is the response body for POST /v1/report/cache/clear.
type ClearCacheResponse struct {
	Cleared  int    `json:"cleared"`
	Location string `json:"location"`
}

// SaveReportResponse is the response body for POST /v1/report.
type SaveReportResponse struct {
	ID          string    `json:"id"`
	Location    string    `json:"location"`
	CachedUntil time.Time `json:"cached_until"`
}

// ReportHandler serves the cached surf report and its admin operations.
type ReportHandler struct {
	service   ReportService
	validator *core.Validator
	logger    *slog.Logger
}

// NewReportHandler creates a ReportHandler with the provided dependencies.
func NewReportHandler(service ReportService, v *core.Validator, l *slog.Logger) *ReportHandler {
	if l == nil {
		l = slog.Default()
	}
	return &ReportHandler{
		service:   service,
		validator: v,
		logger:    l,
	}
}

// RegisterRoutes mounts report routes on the provided chi.Router. The admin
// middleware protects every mutating endpoint; reads stay public.
func (h *ReportHandler) RegisterRoutes(r chi.Router, admin func(http.Handler) http.Handler) {
	r.Route("/report", func(r chi.Router) {
		r.Get("/", h.GetCurrent)
		r.Get("/history", h.GetHistory)

		r.Group(func(r chi.Router) {
			r.Use(admin)
			r.Post("/", h.Save)
			r.Post("/refresh", h.Refresh)
			r.Post("/cache/clear", h.ClearCache)
		})
	})
}

// GetCurrent handles GET /v1/report. The response envelope's meta block
// records which cache tier answered and how old the report is.
func (h *ReportHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	report, meta, err := h.service.GetCurrent(r.Context(), h.location(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: report, Meta: meta})
}

// GetHistory handles GET /v1/report/history?limit=N. Limit defaults to 10,
// capped at 50; a non-numeric or non-positive value is rejected.
func (h *ReportHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			core.Error(w, r, types.NewAppErrorWithDetails(
				types.ErrCodeValidationInvalidLimit,
				"limit must be a positive integer",
				err,
				map[string]any{"limit": raw},
			))
			return
		}
		limit = parsed
		if limit > maxHistoryLimit {
			limit = maxHistoryLimit
		}
	}

	reports, err := h.service.History(r.Context(), h.location(r), limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if reports == nil {
		reports = []types.Report{}
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: reports})
}

// Refresh handles POST /v1/report/refresh. The cache is cleared and a
// regeneration is attempted; a failed regeneration still reports success
// with regenerated=false, because the clear itself succeeded and the next
// read will retry.
func (h *ReportHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.ForceRefresh(r.Context(), h.location(r))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, core.APIResponse{Data: result})
}

// ClearCache handles POST /v1/report/cache/clear.
func (h *ReportHandler) ClearCache(w http.ResponseWriter, r *http.Request) {
	location := h.location(r)
	cleared, err := h.service.ClearCache(r.Context(), location)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "report cache cleared",
		"location", location,
		"cleared", cleared,
	)

	core.JSON(w, r, http.StatusOK, core.APIResponse{
		Data: ClearCacheResponse{Cleared: cleared, Location: location},
	})
}

// Save handles POST /v1/report: direct persistence of a caller-supplied
// report, bypassing generation.
func (h *ReportHandler) Save(w http.ResponseWriter, r *http.Request) {
	var req SaveReportRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	report := &types.Report{
		ID:              req.ID,
		Location:        req.Location,
		Timestamp:       req.Timestamp,
		Narrative:       req.Narrative,
		Conditions:      req.Conditions,
		Recommendations: req.Recommendations,
		CachedUntil:     req.CachedUntil,
	}

	if err := h.service.SaveReport(r.Context(), report); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusCreated, core.APIResponse{
		Data: SaveReportResponse{
			ID:          report.ID,
			Location:    report.Location,
			CachedUntil: report.CachedUntil,
		},
	})
}

// location resolves the report location for a request. A ?location= query
// overrides the deployment default.
func (h *ReportHandler) location(r *http.Request) string {
	if loc := r.URL.Query().Get("location"); loc != "" {
		return loc
	}
	return h.service.Location()
}

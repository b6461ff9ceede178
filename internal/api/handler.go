package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/creditlens/internal/analysis"
	"github.com/opensource-finance/creditlens/internal/bureau"
	"github.com/opensource-finance/creditlens/internal/bus"
	"github.com/opensource-finance/creditlens/internal/compare"
	"github.com/opensource-finance/creditlens/internal/domain"
	"github.com/opensource-finance/creditlens/internal/lenders"
	"github.com/opensource-finance/creditlens/internal/metrics"
	"github.com/opensource-finance/creditlens/internal/ratelimit"
)

// GlobalTenantID holds lender profiles that apply to all tenants.
const GlobalTenantID = "*"

// Options wires the handler's collaborators. Bus, Cache, Economic,
// Limiter and Metrics may be nil.
type Options struct {
	Repo       domain.Repository
	Cache      domain.Cache
	Bus        domain.EventBus
	Bureaus    *bureau.Registry
	Analyzer   *analysis.Analyzer
	Comparator *compare.Comparator
	Economic   analysis.SnapshotSource
	Lenders    *lenders.Engine
	Limiter    *ratelimit.Limiter
	Metrics    *metrics.Collector
	Version    string
	Now        func() time.Time
}

// Handler holds dependencies for API handlers.
type Handler struct {
	repo       domain.Repository
	cache      domain.Cache
	bus        domain.EventBus
	bureaus    *bureau.Registry
	analyzer   *analysis.Analyzer
	comparator *compare.Comparator
	economic   analysis.SnapshotSource
	lenders    *lenders.Engine
	version    string
	now        func() time.Time
}

// NewHandler creates a new API handler.
func NewHandler(opts Options) *Handler {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Bureaus == nil {
		opts.Bureaus = bureau.NewRegistry(nil)
	}
	return &Handler{
		repo:       opts.Repo,
		cache:      opts.Cache,
		bus:        opts.Bus,
		bureaus:    opts.Bureaus,
		analyzer:   opts.Analyzer,
		comparator: opts.Comparator,
		economic:   opts.Economic,
		lenders:    opts.Lenders,
		version:    opts.Version,
		now:        opts.Now,
	}
}

// ReportRequest carries a raw bureau payload for POST /analyze and POST /reports.
type ReportRequest struct {
	Bureau    string          `json:"bureau"`
	SubjectID string          `json:"subjectId,omitempty"`
	Report    json.RawMessage `json:"report"`
}

// AnalyzeResponse is the response for POST /analyze.
type AnalyzeResponse struct {
	DataHash string           `json:"dataHash"`
	Analysis *domain.Analysis `json:"analysis"`
	Metadata struct {
		TraceID string `json:"traceId"`
		TotalMs int64  `json:"totalMs"`
		Version string `json:"version"`
	} `json:"metadata"`
}

// IngestResponse is the response for POST /reports.
type IngestResponse struct {
	SubjectID string        `json:"subjectId"`
	Bureau    domain.Bureau `json:"bureau"`
	DataHash  string        `json:"dataHash"`
	Published bool          `json:"published"`
	TraceID   string        `json:"traceId"`
}

func (h *Handler) parseReport(r *http.Request) (*domain.CreditReport, error) {
	var req ReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON request body", domain.ErrInvalidInput)
	}
	if len(req.Report) == 0 {
		return nil, fmt.Errorf("%w: report is required", domain.ErrInvalidInput)
	}
	b, err := domain.ParseBureau(req.Bureau)
	if err != nil {
		return nil, err
	}
	report, err := h.bureaus.Parse(b, req.SubjectID, req.Report, h.now())
	if err != nil {
		return nil, err
	}
	if !report.HasIdentity() {
		return nil, domain.ErrNoReportData
	}
	return report, nil
}

// Analyze handles POST /analyze: grade a posted report without storing it.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	report, err := h.parseReport(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var snap *domain.EconomicSnapshot
	if h.economic != nil {
		snap = h.economic.Snapshot(ctx)
	}

	result, err := h.analyzer.ComputeAnalysis(report, snap)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	hash, err := analysis.DataHash(report)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := AnalyzeResponse{DataHash: hash, Analysis: result}
	resp.Metadata.TraceID = GetTraceID(ctx)
	resp.Metadata.TotalMs = time.Since(start).Milliseconds()
	resp.Metadata.Version = h.version

	writeJSON(w, http.StatusOK, resp)
}

// IngestReport handles POST /reports: parse, store and announce a report.
// The analysis is computed asynchronously by the worker.
func (h *Handler) IngestReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	traceID := GetTraceID(ctx)

	report, err := h.parseReport(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if report.SubjectID == "" {
		writeError(w, http.StatusBadRequest, "subjectId is required")
		return
	}

	hash, err := analysis.DataHash(report)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if err := h.repo.SaveReport(ctx, tenantID, report); err != nil {
		slog.Error("failed to save report",
			"tenant_id", tenantID,
			"subject_id", report.SubjectID,
			"bureau", report.Bureau,
			"error", err,
		)
		writeDomainError(w, err)
		return
	}

	resp := IngestResponse{
		SubjectID: report.SubjectID,
		Bureau:    report.Bureau,
		DataHash:  hash,
		TraceID:   traceID,
	}

	if h.bus != nil {
		err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicReportIngested, domain.ReportIngestedEvent{
			TenantID:  tenantID,
			SubjectID: report.SubjectID,
			Bureau:    report.Bureau,
			DataHash:  hash,
			TraceID:   traceID,
		})
		if err != nil {
			slog.Error("failed to publish report event",
				"tenant_id", tenantID,
				"subject_id", report.SubjectID,
				"error", err,
			)
		}
		resp.Published = err == nil
	}

	writeJSON(w, http.StatusAccepted, resp)
}

// ListReports handles GET /subjects/{id}/reports.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	subjectID := chi.URLParam(r, "id")

	reports, err := h.repo.ListReports(ctx, GetTenantID(ctx), subjectID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"subjectId": subjectID,
		"reports":   reports,
		"count":     len(reports),
	})
}

// GetAnalysis handles GET /subjects/{id}/analysis?bureau=&force=.
func (h *Handler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID := GetTenantID(ctx)
	subjectID := chi.URLParam(r, "id")

	b, err := domain.ParseBureau(r.URL.Query().Get("bureau"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	force, err := queryBool(r, "force")
	if err != nil {
		writeError(w, http.StatusBadRequest, "force must be a boolean")
		return
	}

	report, err := h.repo.GetReport(ctx, tenantID, subjectID, b)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	outcome, err := h.analyzer.GetOrComputeAnalysis(ctx, domain.SubjectRecord{
		TenantID:  tenantID,
		SubjectID: subjectID,
		Report:    report,
	}, force)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, outcome)
}

// GetComparison handles GET /subjects/{id}/comparison?refresh=.
func (h *Handler) GetComparison(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	refresh, err := queryBool(r, "refresh")
	if err != nil {
		writeError(w, http.StatusBadRequest, "refresh must be a boolean")
		return
	}

	result, err := h.comparator.Comparison(ctx, domain.Identifiers{
		TenantID:  GetTenantID(ctx),
		SubjectID: chi.URLParam(r, "id"),
	}, refresh)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// Economic handles GET /economic.
func (h *Handler) Economic(w http.ResponseWriter, r *http.Request) {
	if h.economic == nil {
		writeError(w, http.StatusServiceUnavailable, "economic data not available")
		return
	}
	writeJSON(w, http.StatusOK, h.economic.Snapshot(r.Context()))
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.cache != nil {
		if err := h.cache.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}
	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// ListLenders returns the lender profiles loaded in the engine.
func (h *Handler) ListLenders(w http.ResponseWriter, r *http.Request) {
	profiles := h.lenders.Profiles()
	writeJSON(w, http.StatusOK, map[string]any{
		"lenders": profiles,
		"count":   len(profiles),
	})
}

// CreateLender validates and stores a global lender profile.
// Call POST /lenders/reload to apply it.
func (h *Handler) CreateLender(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var profile domain.LenderProfile
	if err := json.NewDecoder(r.Body).Decode(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if profile.ID == "" || profile.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required")
		return
	}
	if err := h.lenders.ValidateProfile(&profile); err != nil {
		writeError(w, http.StatusBadRequest, "invalid lender profile: "+err.Error())
		return
	}

	if err := h.repo.SaveLenderProfile(ctx, GlobalTenantID, &profile); err != nil {
		slog.Error("failed to save lender profile", "id", profile.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save lender profile")
		return
	}

	slog.Info("lender profile saved", "id", profile.ID, "name", profile.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"lender":  profile,
		"message": "Lender profile saved. Call POST /lenders/reload to apply changes.",
	})
}

// DeleteLender disables a stored lender profile.
func (h *Handler) DeleteLender(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.DeleteLenderProfile(r.Context(), GlobalTenantID, id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "lender profile disabled",
		"id":      id,
	})
}

// ReloadLenders reloads stored profiles over the built-in defaults.
func (h *Handler) ReloadLenders(w http.ResponseWriter, r *http.Request) {
	stored, err := h.repo.ListLenderProfiles(r.Context(), GlobalTenantID)
	if err != nil {
		slog.Error("failed to list lender profiles", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load lender profiles")
		return
	}

	if err := h.lenders.ReloadProfiles(stored); err != nil {
		slog.Error("failed to reload lender profiles", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload lender profiles: "+err.Error())
		return
	}

	slog.Info("lender profiles reloaded", "stored", len(stored), "loaded", h.lenders.ProfilesCount())
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "lender profiles reloaded",
		"count":   h.lenders.ProfilesCount(),
	})
}

func queryBool(r *http.Request, key string) (bool, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return false, nil
	}
	return strconv.ParseBool(v)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps sentinel errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, domain.ErrNoBureauData):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoReportData):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrUnknownBureau):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		slog.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	adjustmentQueries "github.com/felixgeelhaar/carevisit/internal/adjustment/application/queries"
	adjustmentDomain "github.com/felixgeelhaar/carevisit/internal/adjustment/domain"
	approvalQueries "github.com/felixgeelhaar/carevisit/internal/approval/application/queries"
	approvalDomain "github.com/felixgeelhaar/carevisit/internal/approval/domain"
	"github.com/felixgeelhaar/carevisit/internal/shared/infrastructure/outbox"
	"github.com/felixgeelhaar/carevisit/pkg/observability"
	"github.com/google/uuid"
)

// OutboxStats reports relay progress. *outbox.Processor implements it.
type OutboxStats interface {
	GetStats() outbox.Stats
}

// StatusHandler answers the status API requests.
type StatusHandler struct {
	batches   *adjustmentQueries.GetBatchReportHandler
	getCase   *approvalQueries.GetCaseHandler
	listCases *approvalQueries.ListCasesHandler
	health    *observability.HealthRegistry
	outbox    OutboxStats
	logger    *slog.Logger
}

// StatusHandlerConfig holds dependencies for the status handler. Health and Outbox may be nil.
type StatusHandlerConfig struct {
	Batches   *adjustmentQueries.GetBatchReportHandler
	GetCase   *approvalQueries.GetCaseHandler
	ListCases *approvalQueries.ListCasesHandler
	Health    *observability.HealthRegistry
	Outbox    OutboxStats
	Logger    *slog.Logger
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(cfg StatusHandlerConfig) *StatusHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &StatusHandler{
		batches:   cfg.Batches,
		getCase:   cfg.GetCase,
		listCases: cfg.ListCases,
		health:    cfg.Health,
		outbox:    cfg.Outbox,
		logger:    cfg.Logger,
	}
}

type livenessResponse struct {
	Status string        `json:"status"`
	Time   string        `json:"time"`
	Outbox *outbox.Stats `json:"outbox,omitempty"`
}

// Liveness handles GET /healthz
func (h *StatusHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	resp := livenessResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	}
	if h.outbox != nil {
		stats := h.outbox.GetStats()
		resp.Outbox = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// Readiness handles GET /readyz. It fails only when a dependency is unhealthy.
func (h *StatusHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": string(observability.HealthStatusHealthy)})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	overall := h.health.GetOverallHealth(ctx)
	status := http.StatusOK
	if overall.Status == observability.HealthStatusUnhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, overall)
}

// GetBatch handles GET /api/v1/batches/{batchID}
func (h *StatusHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	view, err := h.batches.Handle(r.Context(), adjustmentQueries.GetBatchReportQuery{
		BatchID:       r.PathValue("batchID"),
		WithConflicts: r.URL.Query().Get("conflicts") == "true",
	})
	switch {
	case errors.Is(err, adjustmentDomain.ErrReportNotFound):
		writeError(w, http.StatusNotFound, "Batch not found")
		return
	case errors.Is(err, adjustmentDomain.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		h.logger.Error("failed to get batch report", "batch_id", r.PathValue("batchID"), "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get batch report")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// ListCases handles GET /api/v1/approvals
func (h *StatusHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	status := q.Get("status")
	if status != "" && !approvalDomain.CaseStatus(status).IsValid() {
		writeError(w, http.StatusBadRequest, "Unknown status '"+status+"'")
		return
	}

	cases, err := h.listCases.Handle(r.Context(), approvalQueries.ListCasesQuery{
		Status:  status,
		BatchID: q.Get("batch_id"),
		Limit:   parseIntParam(r, "limit", 50),
	})
	if err != nil {
		h.logger.Error("failed to list approval cases", "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to list approval cases")
		return
	}

	writeJSON(w, http.StatusOK, cases)
}

// GetCase handles GET /api/v1/approvals/{caseID}
func (h *StatusHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	caseID, err := uuid.Parse(r.PathValue("caseID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid case ID")
		return
	}

	dto, err := h.getCase.Handle(r.Context(), approvalQueries.GetCaseQuery{CaseID: caseID})
	if errors.Is(err, approvalDomain.ErrCaseNotFound) {
		writeError(w, http.StatusNotFound, "Approval case not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to get approval case", "case_id", caseID, "error", err)
		writeError(w, http.StatusInternalServerError, "Failed to get approval case")
		return
	}

	writeJSON(w, http.StatusOK, dto)
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	val := r.URL.Query().Get(name)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

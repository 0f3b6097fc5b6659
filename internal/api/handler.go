package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/opensource-finance/sentinel/internal/domain"
	"github.com/opensource-finance/sentinel/internal/metrics"
	"github.com/opensource-finance/sentinel/internal/pipeline"
	"github.com/opensource-finance/sentinel/internal/repository"
	"github.com/opensource-finance/sentinel/internal/validation"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handler holds dependencies for API handlers.
type Handler struct {
	repo     domain.Repository
	cache    domain.Cache
	bus      domain.EventBus
	pipeline *pipeline.Orchestrator
	metrics  *metrics.Collector
	version  string
}

// NewHandler creates a new API handler.
func NewHandler(deps Dependencies) *Handler {
	return &Handler{
		repo:     deps.Repo,
		cache:    deps.Cache,
		bus:      deps.Bus,
		pipeline: deps.Pipeline,
		metrics:  deps.Metrics,
		version:  deps.Version,
	}
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Error   string                  `json:"error"`
	Reason  string                  `json:"reason,omitempty"`
	Details []domain.FieldViolation `json:"details,omitempty"`
}

// AnalyseResponse is the merged pipeline result. Warnings lists storage
// failures that did not affect the decision.
type AnalyseResponse struct {
	*domain.Evaluation
	Warnings []string `json:"warnings,omitempty"`
}

// IngestResponse acknowledges an asynchronously queued transaction.
type IngestResponse struct {
	Status string `json:"status"`
	TxID   string `json:"txId"`
	Topic  string `json:"topic"`
}

// TransactionList is a page of stored transactions.
type TransactionList struct {
	Transactions []*domain.TransactionEvent `json:"transactions"`
	Limit        int                        `json:"limit"`
	Offset       int                        `json:"offset"`
}

// Analyse handles POST /transactions/analyse: validate, store the raw
// record, run the pipeline, store the evaluation and answer with the
// merged result.
func (h *Handler) Analyse(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	var warnings []string
	if h.repo != nil {
		err := h.repo.SaveTransaction(ctx, tx)
		if err != nil && !errors.Is(err, repository.ErrDuplicate) {
			slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
			warnings = append(warnings, "persistence: transaction record not stored")
		}
	}

	eval, err := h.pipeline.Run(ctx, r.Header.Get(RunKeyHeader), *tx)
	if err != nil {
		writePipelineError(w, err)
		return
	}
	if eval.Metadata.TraceID == "" {
		eval.Metadata.TraceID = GetTraceID(ctx)
	}

	if h.repo != nil {
		if err := h.repo.SaveEvaluation(ctx, eval); err != nil {
			slog.Error("failed to save evaluation",
				"tx_id", tx.ID,
				"evaluation_id", eval.ID,
				"error", err,
			)
			warnings = append(warnings, "persistence: evaluation not stored")
		}
	}

	writeJSON(w, http.StatusOK, AnalyseResponse{Evaluation: eval, Warnings: warnings})
}

// Ingest handles POST /transactions/ingest. The body is validated here and
// evaluated later by the worker.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not configured")
		return
	}

	raw, ok := readBody(w, r)
	if !ok {
		return
	}
	req, err := validation.DecodeTransaction(raw)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	payload, err := json.Marshal(domain.IngestMessage{
		RunKey:      r.Header.Get(RunKeyHeader),
		Transaction: raw,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode message")
		return
	}

	if err := h.bus.Publish(r.Context(), domain.TopicTransactionIngested, payload); err != nil {
		h.metrics.RecordBusMessage(domain.TopicTransactionIngested, "failed")
		slog.Error("failed to publish transaction", "tx_id", req.ID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "event bus unavailable")
		return
	}
	h.metrics.RecordBusMessage(domain.TopicTransactionIngested, "published")

	writeJSON(w, http.StatusAccepted, IngestResponse{
		Status: "accepted",
		TxID:   req.ID,
		Topic:  domain.TopicTransactionIngested,
	})
}

// CreateTransaction handles POST /transactions. Records are append-only.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not configured")
		return
	}

	tx, ok := h.decodeTransaction(w, r)
	if !ok {
		return
	}

	err := h.repo.SaveTransaction(r.Context(), tx)
	switch {
	case err == nil:
		writeJSON(w, http.StatusCreated, tx)
	case errors.Is(err, repository.ErrDuplicate):
		writeError(w, http.StatusConflict, fmt.Sprintf("transaction %s already exists", tx.ID))
	default:
		slog.Error("failed to save transaction", "tx_id", tx.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store transaction")
	}
}

// ListTransactions handles GET /transactions?limit&offset.
func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not configured")
		return
	}

	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	txs, err := h.repo.ListTransactions(r.Context(), page)
	if err != nil {
		slog.Error("failed to list transactions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, TransactionList{Transactions: txs, Limit: page.Limit, Offset: page.Offset})
}

// ListUserTransactions handles GET /transactions/users/{userId}. since is
// an optional RFC 3339 lower bound on the transaction timestamp.
func (h *Handler) ListUserTransactions(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not configured")
		return
	}

	userID := chi.URLParam(r, "userId")
	page, err := parsePage(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var since time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		since, err = time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be an RFC 3339 timestamp")
			return
		}
	}

	txs, err := h.repo.ListTransactionsByUser(r.Context(), userID, since, page)
	if err != nil {
		slog.Error("failed to list user transactions", "user_id", userID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	writeJSON(w, http.StatusOK, TransactionList{Transactions: txs, Limit: page.Limit, Offset: page.Offset})
}

// GetTransaction retrieves a transaction by ID.
func (h *Handler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not configured")
		return
	}

	tx, err := h.repo.GetTransaction(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "transaction not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load transaction")
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

// GetEvaluation retrieves an evaluation by ID.
func (h *Handler) GetEvaluation(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not configured")
		return
	}

	eval, err := h.repo.GetEvaluation(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, repository.ErrNotFound) {
		writeError(w, http.StatusNotFound, "evaluation not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load evaluation")
		return
	}
	writeJSON(w, http.StatusOK, eval)
}

// GetRun returns the last checkpoint written for a run key.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runKey := chi.URLParam(r, "runKey")

	state, err := h.pipeline.Checkpoint(r.Context(), runKey)
	if err != nil {
		slog.Warn("failed to read checkpoint", "run_key", runKey, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to read checkpoint")
		return
	}
	if state == nil {
		writeError(w, http.StatusNotFound, "no checkpoint for run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runKey": runKey,
		"state":  state,
	})
}

// GetCatalog returns the rule book the pipeline scores with.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	catalog := h.pipeline.Catalog()
	writeJSON(w, http.StatusOK, map[string]any{
		"version": catalog.Version(),
		"count":   catalog.Len(),
		"catalog": catalog.Book(),
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	status := "healthy"
	checks := map[string]string{}

	check := func(name string, ping func() error) {
		if err := ping(); err != nil {
			checks[name] = err.Error()
			status = "degraded"
			return
		}
		checks[name] = "ok"
	}

	if h.repo != nil {
		check("repository", func() error { return h.repo.Ping(ctx) })
	}
	if h.cache != nil {
		check("cache", func() error { return h.cache.Ping(ctx) })
	}
	if h.bus != nil {
		check("eventBus", func() error { return h.bus.Ping(ctx) })
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":  status,
		"version": h.version,
		"checks":  checks,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if h.repo != nil {
		if err := h.repo.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"ready": "false"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"ready": "true"})
}

func (h *Handler) decodeTransaction(w http.ResponseWriter, r *http.Request) (*domain.TransactionEvent, bool) {
	raw, ok := readBody(w, r)
	if !ok {
		return nil, false
	}
	req, err := validation.DecodeTransaction(raw)
	if err != nil {
		writeValidationError(w, err)
		return nil, false
	}
	tx, err := req.ToEvent()
	if err != nil {
		writeValidationError(w, &domain.ValidationError{Violations: []domain.FieldViolation{
			{Field: "timestamp", Message: err.Error()},
		}})
		return nil, false
	}
	return &tx, true
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return nil, false
	}
	return raw, true
}

func parsePage(r *http.Request) (domain.Page, error) {
	var page domain.Page
	q := r.URL.Query()

	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, errors.New("limit must be a non-negative integer")
		}
		page.Limit = n
	}
	if raw := q.Get("offset"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return page, errors.New("offset must be a non-negative integer")
		}
		page.Offset = n
	}
	return page.Normalize(), nil
}

func writePipelineError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeValidationError(w, verr)
		return
	}

	var aerr *domain.AssessmentError
	if errors.As(err, &aerr) {
		status := http.StatusBadGateway
		if aerr.Reason == domain.AssessTimeout {
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, ErrorResponse{Error: "assessment unavailable", Reason: aerr.Reason})
		return
	}

	slog.Error("pipeline run failed", "error", err)
	writeError(w, http.StatusInternalServerError, "evaluation failed")
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorResponse{
		Error:   domain.ErrValidation.Error(),
		Details: verr.Violations,
	})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

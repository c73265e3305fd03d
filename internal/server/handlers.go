package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/clipgrab/internal/acquire"
	"github.com/maauso/clipgrab/internal/batch"
)

// BatchProcessor runs batches and reports their status.
type BatchProcessor interface {
	ProcessBatch(ctx context.Context, label string, items []batch.VideoRequest) batch.BatchResult
	GetTaskStatus(ctx context.Context, taskID string) string
}

// writeSlack is added to a batch's worst-case run time when extending the
// response write deadline.
const writeSlack = time.Minute

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   BatchProcessor
	validator *validator.Validate
	logger    *slog.Logger

	concurrency int
	itemTimeout time.Duration
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithBatchBudget tells the handlers how the service runs batches so that a
// batch request gets a write deadline long enough for all of its items.
// With no budget the server's own WriteTimeout applies unchanged.
func WithBatchBudget(concurrency int, itemTimeout time.Duration) HandlerOption {
	return func(h *Handlers) {
		if concurrency > 0 {
			h.concurrency = concurrency
		}
		if itemTimeout > 0 {
			h.itemTimeout = itemTimeout
		}
	}
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service BatchProcessor, logger *slog.Logger, opts ...HandlerOption) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{
		service:     service,
		validator:   validator.New(),
		logger:      logger,
		concurrency: batch.DefaultMaxConcurrentItems,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// batchWriteBudget is the longest a batch of n items can take: the items run
// in waves of h.concurrency, each wave bounded by the item timeout.
func (h *Handlers) batchWriteBudget(n int) time.Duration {
	if h.itemTimeout <= 0 {
		return 0
	}
	waves := (n + h.concurrency - 1) / h.concurrency
	return time.Duration(waves)*h.itemTimeout + writeSlack
}

// extendWriteDeadline pushes the connection's write deadline out far enough
// for a batch of n items.
func (h *Handlers) extendWriteDeadline(w http.ResponseWriter, n int) {
	budget := h.batchWriteBudget(n)
	if budget == 0 {
		return
	}
	err := http.NewResponseController(w).SetWriteDeadline(time.Now().Add(budget))
	if err != nil && !errors.Is(err, http.ErrNotSupported) {
		h.logger.Warn("failed to extend write deadline",
			slog.Duration("budget", budget),
			slog.String("error", err.Error()),
		)
	}
}

// Health handles GET /health requests.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// ProcessBatch handles POST /process-batch requests. The batch runs to
// completion within the request; item failures are reported in the body
// of a 200 response. Platform tags are passed through verbatim, so a tag
// with no strategy (including an empty one) fails only its own item.
func (h *Handlers) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	var req ProcessBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), "VALIDATION_ERROR")
		return
	}

	items := make([]batch.VideoRequest, len(req.URLs))
	for i, u := range req.URLs {
		items[i] = batch.VideoRequest{
			URL:      u.URL,
			Platform: acquire.Platform(u.Platform),
		}
	}

	h.extendWriteDeadline(w, len(items))
	result := h.service.ProcessBatch(r.Context(), req.SheetName, items)

	writeJSON(w, http.StatusOK, toProcessBatchResponse(result))
}

// GetStatus handles GET /status/{task_id} requests.
func (h *Handlers) GetStatus(w http.ResponseWriter, r *http.Request) {
	taskID := r.PathValue("task_id")
	if taskID == "" {
		writeError(w, http.StatusBadRequest, "task ID is required", "MISSING_TASK_ID")
		return
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		TaskID: taskID,
		Status: h.service.GetTaskStatus(r.Context(), taskID),
	})
}

func toProcessBatchResponse(r batch.BatchResult) ProcessBatchResponse {
	results := make([]ItemResponse, len(r.Results))
	for i, item := range r.Results {
		results[i] = ItemResponse{
			OriginalURL: item.OriginalURL,
			VideoURL:    optional(item.StoredVideoURL),
			GIFURL:      optional(item.StoredClipURL),
			Status:      string(item.Status),
			Error:       optional(item.Error),
		}
	}
	return ProcessBatchResponse{
		TaskID:         r.TaskID,
		Results:        results,
		TotalProcessed: r.TotalProcessed(),
		Successful:     r.Successful(),
		Failed:         r.Failed(),
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

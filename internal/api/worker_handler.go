package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
)

const (
	defaultDueLimit = 100
	maxDueLimit     = 500
)

// WorkerHandler serves the external delivery worker: it hands out due
// deliveries and records the outcome of each send attempt.
type WorkerHandler struct {
	deliveryService delivery.Service
	logger          *slog.Logger
}

// NewWorkerHandler creates a new WorkerHandler
func NewWorkerHandler(deliveryService delivery.Service, logger *slog.Logger) *WorkerHandler {
	if deliveryService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("deliveryService cannot be nil for WorkerHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for WorkerHandler")
	}

	return &WorkerHandler{
		deliveryService: deliveryService,
		logger:          logger.With(slog.String("component", "worker_handler")),
	}
}

// ListDue handles GET /worker/deliveries/due?limit=N requests.
func (h *WorkerHandler) ListDue(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	limit := defaultDueLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxDueLimit {
			log.Warn("invalid limit", slog.String("limit", raw))
			shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid limit: must be between 1 and 500")
			return
		}
		limit = n
	}

	due, err := h.deliveryService.ListDue(r.Context(), limit)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to list due deliveries")
		return
	}

	response := DueDeliveriesResponse{Deliveries: make([]DeliveryResponse, 0, len(due))}
	for _, d := range due {
		response.Deliveries = append(response.Deliveries, deliveryToResponse(d))
	}
	log.Debug("listed due deliveries", slog.Int("count", len(due)))
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// RecordResult handles POST /worker/deliveries/{id}/result requests.
func (h *WorkerHandler) RecordResult(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	deliveryID, err := getPathUUID(r, "id")
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}
	log = log.With(slog.String("delivery_id", deliveryID.String()))

	var req SendResultRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	d, err := h.deliveryService.RecordSendResult(r.Context(), deliveryID, delivery.SendOutcome{
		Kind:  delivery.OutcomeKind(req.Outcome),
		Error: req.Error,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record send result")
		return
	}

	log.Debug("send result recorded",
		slog.String("outcome", req.Outcome),
		slog.String("status", string(d.Status)))
	shared.RespondWithJSON(w, r, http.StatusOK, deliveryToResponse(d))
}

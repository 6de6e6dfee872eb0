package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
)

// DeliveryHandler handles the learner-facing delivery actions.
type DeliveryHandler struct {
	deliveryService delivery.Service
	logger          *slog.Logger
}

// NewDeliveryHandler creates a new DeliveryHandler
func NewDeliveryHandler(deliveryService delivery.Service, logger *slog.Logger) *DeliveryHandler {
	if deliveryService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("deliveryService cannot be nil for DeliveryHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for DeliveryHandler")
	}

	return &DeliveryHandler{
		deliveryService: deliveryService,
		logger:          logger.With(slog.String("component", "delivery_handler")),
	}
}

// SubmitFeedback handles POST /deliveries/{id}/feedback requests.
// It records the learner's rating and returns when the content comes back.
func (h *DeliveryHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, deliveryID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}
	log = log.With(slog.String("user_id", userID.String()), slog.String("delivery_id", deliveryID.String()))

	var req FeedbackRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	quality, err := domain.NewQuality(*req.Quality, domain.QualityScale(req.Scale))
	if err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	result, err := h.deliveryService.ProcessFeedback(r.Context(), delivery.FeedbackRequest{
		UserID:     userID,
		DeliveryID: deliveryID,
		CardID:     req.CardID,
		Quality:    quality,
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to process feedback")
		return
	}

	response := FeedbackResponse{
		Success:      true,
		NextReviewAt: result.NextReviewAt,
		Replayed:     result.Replayed,
	}
	if result.NextCard != nil {
		response.NextCardID = result.NextCard.ID
		response.NextCardName = result.NextCard.ContentName
		response.NextCardType = string(result.NextCard.Type)
	}

	log.Debug("feedback processed",
		slog.Int("quality", int(quality)),
		slog.Bool("replayed", result.Replayed))
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

// MarkOpened handles POST /deliveries/{id}/open requests.
func (h *DeliveryHandler) MarkOpened(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, deliveryID, ok := handleUserIDAndPathUUID(w, r, "id", log)
	if !ok {
		return
	}

	d, err := h.deliveryService.MarkOpened(r.Context(), userID, deliveryID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to mark delivery opened")
		return
	}

	log.Debug("delivery opened",
		slog.String("user_id", userID.String()),
		slog.String("delivery_id", deliveryID.String()))
	shared.RespondWithJSON(w, r, http.StatusOK, deliveryToResponse(d))
}

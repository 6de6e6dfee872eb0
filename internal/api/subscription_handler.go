package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/nudge-api/internal/api/shared"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/subscription"
)

// SubscriptionHandler handles product subscription requests.
type SubscriptionHandler struct {
	subscriptionService subscription.Service
	logger              *slog.Logger
}

// NewSubscriptionHandler creates a new SubscriptionHandler
func NewSubscriptionHandler(subscriptionService subscription.Service, logger *slog.Logger) *SubscriptionHandler {
	if subscriptionService == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("subscriptionService cannot be nil for SubscriptionHandler")
	}
	if logger == nil {
		// ALLOW-PANIC: Constructor enforcing required dependency
		panic("logger cannot be nil for SubscriptionHandler")
	}

	return &SubscriptionHandler{
		subscriptionService: subscriptionService,
		logger:              logger.With(slog.String("component", "subscription_handler")),
	}
}

// Subscribe handles POST /subscriptions requests.
func (h *SubscriptionHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, ok := getUserIDFromContext(r)
	if !ok {
		log.Warn("user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return
	}

	var req SubscribeRequest
	if !decodeAndValidate(w, r, &req, log) {
		return
	}

	result, err := h.subscriptionService.Subscribe(r.Context(), subscription.SubscribeRequest{
		UserID:    userID,
		ProductID: req.ProductID,
		ChannelID: req.ChannelID,
		Tier:      domain.Tier(req.Tier),
	})
	if err != nil {
		HandleAPIError(w, r, err, "Failed to subscribe")
		return
	}

	response := subscriptionToResponse(result.Subscription)
	response.StatesCreated = result.StatesCreated
	if result.InitialDelivery != nil {
		d := deliveryToResponse(result.InitialDelivery)
		response.InitialDelivery = &d
	}

	log.Debug("subscription created",
		slog.String("user_id", userID.String()),
		slog.String("product_id", req.ProductID.String()))
	shared.RespondWithJSON(w, r, http.StatusCreated, response)
}

// Unsubscribe handles DELETE /subscriptions/{productID} requests.
func (h *SubscriptionHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContextOrDefault(r.Context(), h.logger)

	userID, productID, ok := handleUserIDAndPathUUID(w, r, "productID", log)
	if !ok {
		return
	}

	result, err := h.subscriptionService.Unsubscribe(r.Context(), userID, productID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to unsubscribe")
		return
	}

	response := subscriptionToResponse(result.Subscription)
	response.CancelledDeliveries = len(result.Cancelled)
	shared.RespondWithJSON(w, r, http.StatusOK, response)
}

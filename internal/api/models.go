package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
)

// FeedbackRequest is the body of POST /deliveries/{id}/feedback.
type FeedbackRequest struct {
	CardID  uuid.UUID `json:"card_id"  validate:"required"`
	Quality *int      `json:"quality"  validate:"required"`
	// Scale defaults to sm2 (0-5); engagement scores (1-10) are normalized.
	Scale string `json:"scale,omitempty" validate:"omitempty,oneof=sm2 engagement"`
}

// FeedbackResponse tells the client when the content returns and with which card.
type FeedbackResponse struct {
	Success      bool      `json:"success"`
	NextReviewAt time.Time `json:"next_review_at"`
	NextCardID   uuid.UUID `json:"next_card_id"`
	NextCardName string    `json:"next_card_name,omitempty"`
	NextCardType string    `json:"next_card_type"`
	Replayed     bool      `json:"replayed"`
}

// DeliveryResponse is the API view of a delivery.
type DeliveryResponse struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             uuid.UUID  `json:"user_id"`
	ChannelID          uuid.UUID  `json:"channel_id"`
	ContentID          uuid.UUID  `json:"content_id"`
	CardID             uuid.UUID  `json:"card_id"`
	PreviousDeliveryID *uuid.UUID `json:"previous_delivery_id,omitempty"`
	Status             string     `json:"status"`
	RetryCount         int        `json:"retry_count"`
	LastError          string     `json:"last_error,omitempty"`
	ScheduledAt        time.Time  `json:"scheduled_at"`
	NextRetryAt        *time.Time `json:"next_retry_at,omitempty"`
	SentAt             *time.Time `json:"sent_at,omitempty"`
	OpenedAt           *time.Time `json:"opened_at,omitempty"`
}

// SubscribeRequest is the body of POST /subscriptions.
type SubscribeRequest struct {
	ProductID uuid.UUID  `json:"product_id"           validate:"required"`
	ChannelID *uuid.UUID `json:"channel_id,omitempty"`
	Tier      string     `json:"tier"                 validate:"required,oneof=basic premium vip"`
}

// SubscriptionResponse is the API view of a subscription.
type SubscriptionResponse struct {
	ID                   uuid.UUID         `json:"id"`
	ProductID            uuid.UUID         `json:"product_id"`
	ChannelID            uuid.UUID         `json:"channel_id"`
	Tier                 string            `json:"tier"`
	DispatchDelaySeconds int64             `json:"dispatch_delay_seconds"`
	IsActive             bool              `json:"is_active"`
	SubscribedAt         time.Time         `json:"subscribed_at"`
	UnsubscribedAt       *time.Time        `json:"unsubscribed_at,omitempty"`
	StatesCreated        int               `json:"states_created,omitempty"`
	InitialDelivery      *DeliveryResponse `json:"initial_delivery,omitempty"`
	CancelledDeliveries  int               `json:"cancelled_deliveries,omitempty"`
}

// DueDeliveriesResponse lists the deliveries the worker should attempt.
type DueDeliveriesResponse struct {
	Deliveries []DeliveryResponse `json:"deliveries"`
}

// SendResultRequest is the body of POST /worker/deliveries/{id}/result.
type SendResultRequest struct {
	Outcome string `json:"outcome"         validate:"required,oneof=sent transient_failure permanent_failure"`
	Error   string `json:"error,omitempty" validate:"max=2000"`
}

func deliveryToResponse(d *domain.Delivery) DeliveryResponse {
	return DeliveryResponse{
		ID:                 d.ID,
		UserID:             d.UserID,
		ChannelID:          d.ChannelID,
		ContentID:          d.ContentID,
		CardID:             d.CardID,
		PreviousDeliveryID: d.PreviousDeliveryID,
		Status:             string(d.Status),
		RetryCount:         d.RetryCount,
		LastError:          d.LastError,
		ScheduledAt:        d.ScheduledAt,
		NextRetryAt:        d.NextRetryAt,
		SentAt:             d.SentAt,
		OpenedAt:           d.OpenedAt,
	}
}

func subscriptionToResponse(s *domain.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                   s.ID,
		ProductID:            s.ProductID,
		ChannelID:            s.ChannelID,
		Tier:                 string(s.Tier),
		DispatchDelaySeconds: int64(s.DispatchDelay.Seconds()),
		IsActive:             s.IsActive,
		SubscribedAt:         s.SubscribedAt,
		UnsubscribedAt:       s.UnsubscribedAt,
	}
}

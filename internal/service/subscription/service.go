// Package subscription enrolls users in learning products: it creates the
// memory states for a product's content units and queues the first nudge.
package subscription

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/config"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
	"github.com/phrazzld/nudge-api/internal/store"
)

// Errors returned by the subscription Service
var (
	// ErrProductNotFound indicates that the product does not exist.
	ErrProductNotFound = fmt.Errorf("%w: product", store.ErrNotFound)

	// ErrProductInactive indicates that the product no longer accepts subscriptions.
	ErrProductInactive = domain.NewValidationError("product_id", "is not open for subscription", domain.ErrValidation)

	// ErrSubscriptionNotFound indicates that the user is not subscribed to the product.
	ErrSubscriptionNotFound = fmt.Errorf("%w: subscription", store.ErrNotFound)

	// ErrChannelNotOwned indicates that the chosen channel belongs to another user.
	ErrChannelNotOwned = fmt.Errorf("%w: channel not owned by user", domain.ErrUnauthorized)

	// ErrNoChannel indicates that no active, push-enabled channel is available.
	ErrNoChannel = delivery.ErrNoChannel
)

// Delays maps each tier to the wait before its first nudge.
type Delays struct {
	Basic   time.Duration
	Premium time.Duration
	VIP     time.Duration
}

// DefaultDelays returns the delays used when nothing is configured.
func DefaultDelays() Delays {
	return Delays{
		Basic:   2 * time.Hour,
		Premium: 5 * time.Minute,
		VIP:     0,
	}
}

// DelaysFromConfig converts the configured tier delays.
func DelaysFromConfig(cfg config.SubscriptionConfig) Delays {
	return Delays{
		Basic:   time.Duration(cfg.BasicDelaySeconds) * time.Second,
		Premium: time.Duration(cfg.PremiumDelaySeconds) * time.Second,
		VIP:     time.Duration(cfg.VIPDelaySeconds) * time.Second,
	}
}

// For returns the delay of tier t.
func (d Delays) For(t domain.Tier) time.Duration {
	switch t {
	case domain.TierPremium:
		return d.Premium
	case domain.TierVIP:
		return d.VIP
	default:
		return d.Basic
	}
}

// SubscribeRequest asks to enroll a user in a product.
type SubscribeRequest struct {
	UserID    uuid.UUID
	ProductID uuid.UUID
	// ChannelID is optional; without it the user's preferred eligible channel is used.
	ChannelID *uuid.UUID
	Tier      domain.Tier
}

// Validate checks the request before any state is touched.
func (r SubscribeRequest) Validate() error {
	switch {
	case r.UserID == uuid.Nil:
		return domain.NewValidationError("user_id", "is required", domain.ErrValidation)
	case r.ProductID == uuid.Nil:
		return domain.NewValidationError("product_id", "is required", domain.ErrValidation)
	case r.ChannelID != nil && *r.ChannelID == uuid.Nil:
		return domain.NewValidationError("channel_id", "must not be empty", domain.ErrValidation)
	case !r.Tier.Valid():
		return domain.NewValidationError("tier", "must be basic, premium or vip", domain.ErrValidation)
	}
	return nil
}

// SubscribeResult describes what a subscription created.
type SubscribeResult struct {
	Subscription *domain.Subscription
	// StatesCreated counts the memory states created; existing ones are untouched.
	StatesCreated int
	// InitialDelivery is nil when the user already had an active delivery for the product.
	InitialDelivery *domain.Delivery
}

// UnsubscribeResult describes what an unsubscribe changed.
type UnsubscribeResult struct {
	Subscription *domain.Subscription
	Cancelled    []*domain.Delivery
}

// Service manages product subscriptions.
type Service interface {
	// Subscribe creates or reactivates the subscription, creates a memory state
	// for every active content unit, and queues one delivery for the first
	// content's card. Subscribing again creates no duplicate states or deliveries.
	Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error)

	// Unsubscribe deactivates the subscription and cancels the product's active
	// deliveries. Memory states are kept so progress survives a re-subscription.
	Unsubscribe(ctx context.Context, userID, productID uuid.UUID) (*UnsubscribeResult, error)
}

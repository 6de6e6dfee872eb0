package domain

import (
	"time"

	"github.com/google/uuid"
)

// Tier is the subscription level of a product subscription.
// Higher tiers get their first nudge sooner.
type Tier string

// Subscription tiers
const (
	TierBasic   Tier = "basic"
	TierPremium Tier = "premium"
	TierVIP     Tier = "vip"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierBasic, TierPremium, TierVIP:
		return true
	default:
		return false
	}
}

// Subscription links a user to a learning product.
type Subscription struct {
	ID             uuid.UUID     `json:"id"`
	UserID         uuid.UUID     `json:"user_id"`
	ProductID      uuid.UUID     `json:"product_id"`
	ChannelID      uuid.UUID     `json:"channel_id"`
	Tier           Tier          `json:"tier"`
	DispatchDelay  time.Duration `json:"dispatch_delay"`
	IsActive       bool          `json:"is_active"`
	SubscribedAt   time.Time     `json:"subscribed_at"`
	UnsubscribedAt *time.Time    `json:"unsubscribed_at,omitempty"`
	UpdatedAt      time.Time     `json:"updated_at"`
}

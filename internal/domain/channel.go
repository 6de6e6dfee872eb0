package domain

import (
	"sort"
	"time"

	"github.com/google/uuid"
)

// ChannelType identifies the messaging platform behind a connection.
type ChannelType string

// Supported channel types
const (
	ChannelTypeTelegram ChannelType = "telegram"
	ChannelTypeDiscord  ChannelType = "discord"
	ChannelTypeKakao    ChannelType = "kakao"
	ChannelTypeWebhook  ChannelType = "webhook"
)

// Channel is a user's connected messaging destination.
type Channel struct {
	ID          uuid.UUID   `json:"id"`
	UserID      uuid.UUID   `json:"user_id"`
	Type        ChannelType `json:"channel_type"`
	Identifier  string      `json:"identifier"`
	IsActive    bool        `json:"is_active"`
	PushEnabled bool        `json:"push_enabled"`
	IsPrimary   bool        `json:"is_primary"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Eligible reports whether nudges can be pushed to the channel.
func (c *Channel) Eligible() bool {
	return c.IsActive && c.PushEnabled
}

// SelectChannel picks the channel a nudge should go to: eligible channels only,
// the primary one preferred, then the oldest connection.
// Returns false when no channel is eligible.
func SelectChannel(channels []*Channel) (*Channel, bool) {
	eligible := make([]*Channel, 0, len(channels))
	for _, c := range channels {
		if c != nil && c.Eligible() {
			eligible = append(eligible, c)
		}
	}
	if len(eligible) == 0 {
		return nil, false
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].IsPrimary != eligible[j].IsPrimary {
			return eligible[i].IsPrimary
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	return eligible[0], true
}

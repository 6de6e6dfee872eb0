package api

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
	"github.com/phrazzld/nudge-api/internal/service/subscription"
)

// mockDeliveryService implements delivery.Service with overridable functions.
type mockDeliveryService struct {
	ProcessFeedbackFn  func(ctx context.Context, req delivery.FeedbackRequest) (*delivery.FeedbackResult, error)
	RecordSendResultFn func(ctx context.Context, id uuid.UUID, outcome delivery.SendOutcome) (*domain.Delivery, error)
	MarkOpenedFn       func(ctx context.Context, userID, deliveryID uuid.UUID) (*domain.Delivery, error)
	ListDueFn          func(ctx context.Context, limit int) ([]*domain.Delivery, error)
}

var _ delivery.Service = (*mockDeliveryService)(nil)

func (m *mockDeliveryService) ProcessFeedback(
	ctx context.Context,
	req delivery.FeedbackRequest,
) (*delivery.FeedbackResult, error) {
	return m.ProcessFeedbackFn(ctx, req)
}

func (m *mockDeliveryService) RecordSendResult(
	ctx context.Context,
	id uuid.UUID,
	outcome delivery.SendOutcome,
) (*domain.Delivery, error) {
	return m.RecordSendResultFn(ctx, id, outcome)
}

func (m *mockDeliveryService) MarkOpened(ctx context.Context, userID, deliveryID uuid.UUID) (*domain.Delivery, error) {
	return m.MarkOpenedFn(ctx, userID, deliveryID)
}

func (m *mockDeliveryService) ListDue(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	return m.ListDueFn(ctx, limit)
}

// mockSubscriptionService implements subscription.Service with overridable functions.
type mockSubscriptionService struct {
	SubscribeFn   func(ctx context.Context, req subscription.SubscribeRequest) (*subscription.SubscribeResult, error)
	UnsubscribeFn func(ctx context.Context, userID, productID uuid.UUID) (*subscription.UnsubscribeResult, error)
}

var _ subscription.Service = (*mockSubscriptionService)(nil)

func (m *mockSubscriptionService) Subscribe(
	ctx context.Context,
	req subscription.SubscribeRequest,
) (*subscription.SubscribeResult, error) {
	return m.SubscribeFn(ctx, req)
}

func (m *mockSubscriptionService) Unsubscribe(
	ctx context.Context,
	userID, productID uuid.UUID,
) (*subscription.UnsubscribeResult, error) {
	return m.UnsubscribeFn(ctx, userID, productID)
}

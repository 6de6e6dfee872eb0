package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/events"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
	"github.com/phrazzld/nudge-api/internal/store"
)

// Verify interface compliance at compile time
var _ Service = (*serviceImpl)(nil)

// Option configures a Service.
type Option func(*serviceImpl)

// WithClock replaces time.Now as the source of the current time.
func WithClock(now func() time.Time) Option {
	return func(s *serviceImpl) {
		s.now = now
	}
}

// WithEmitter sets the emitter that receives delivery events after commit.
func WithEmitter(emitter events.EventEmitter) Option {
	return func(s *serviceImpl) {
		s.emitter = emitter
	}
}

type serviceImpl struct {
	uow     store.UnitOfWork
	delays  Delays
	emitter events.EventEmitter
	now     func() time.Time
	logger  *slog.Logger
}

// NewService creates a subscription Service.
func NewService(uow store.UnitOfWork, delays Delays, logger *slog.Logger, opts ...Option) (Service, error) {
	if uow == nil {
		return nil, domain.NewValidationError("uow", "cannot be nil", domain.ErrValidation)
	}
	if delays.Basic < 0 || delays.Premium < 0 || delays.VIP < 0 {
		return nil, domain.NewValidationError("delays", "must not be negative", domain.ErrValidation)
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &serviceImpl{
		uow:     uow,
		delays:  delays,
		emitter: events.NopEmitter{},
		now:     time.Now,
		logger:  logger.With(slog.String("component", "subscription_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Subscribe implements Service.Subscribe.
func (s *serviceImpl) Subscribe(ctx context.Context, req SubscribeRequest) (*SubscribeResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := req.Validate(); err != nil {
		log.Debug("invalid subscribe request", slog.String("error", err.Error()))
		return nil, err
	}

	log = log.With(
		slog.String("user_id", req.UserID.String()),
		slog.String("product_id", req.ProductID.String()),
		slog.String("tier", string(req.Tier)))

	result := &SubscribeResult{}
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		product, err := repos.Catalog.GetProduct(ctx, req.ProductID)
		if err != nil {
			if errors.Is(err, store.ErrProductNotFound) {
				return ErrProductNotFound
			}
			return fmt.Errorf("failed to load product: %w", err)
		}
		if !product.IsActive {
			return ErrProductInactive
		}

		channel, err := s.resolveChannel(ctx, repos, req)
		if err != nil {
			return err
		}

		now := s.now().UTC()
		delay := s.delays.For(req.Tier)
		sub, err := repos.Subscriptions.Upsert(ctx, &domain.Subscription{
			ID:            uuid.New(),
			UserID:        req.UserID,
			ProductID:     req.ProductID,
			ChannelID:     channel.ID,
			Tier:          req.Tier,
			DispatchDelay: delay,
			IsActive:      true,
			SubscribedAt:  now,
			UpdatedAt:     now,
		})
		if err != nil {
			return fmt.Errorf("failed to save subscription: %w", err)
		}
		result.Subscription = sub

		contents, err := repos.Catalog.ListActiveContents(ctx, req.ProductID)
		if err != nil {
			return fmt.Errorf("failed to list contents: %w", err)
		}

		contentIDs := make([]uuid.UUID, 0, len(contents))
		for _, c := range contents {
			state, err := domain.NewMemoryState(req.UserID, c.ID, now)
			if err != nil {
				return err
			}
			created, err := repos.States.CreateIfNotExists(ctx, state)
			if err != nil {
				return fmt.Errorf("failed to create memory state: %w", err)
			}
			if created {
				result.StatesCreated++
			}
			contentIDs = append(contentIDs, c.ID)
		}

		active, err := repos.Deliveries.ListActiveForContents(ctx, req.UserID, contentIDs)
		if err != nil {
			return fmt.Errorf("failed to list active deliveries: %w", err)
		}
		if len(active) > 0 {
			log.Debug("active delivery exists, no initial delivery queued",
				slog.String("delivery_id", active[0].ID.String()))
			return nil
		}

		result.InitialDelivery, err = s.queueInitial(ctx, repos, req.UserID, channel.ID, contents, now.Add(delay), now)
		return err
	})
	if err != nil {
		if isDomainError(err) {
			log.Debug("subscribe rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to subscribe", slog.String("error", err.Error()))
		return nil, delivery.NewServiceError("subscribe", "failed to subscribe", err)
	}

	if result.InitialDelivery != nil {
		s.emit(ctx, events.TypeDeliveryScheduled, result.InitialDelivery)
	}

	log.Info("user subscribed",
		slog.String("subscription_id", result.Subscription.ID.String()),
		slog.Int("states_created", result.StatesCreated),
		slog.Bool("initial_delivery", result.InitialDelivery != nil))
	return result, nil
}

// resolveChannel returns the channel named in the request, which must be
// eligible, or else the user's preferred eligible channel.
func (s *serviceImpl) resolveChannel(
	ctx context.Context,
	repos store.Repositories,
	req SubscribeRequest,
) (*domain.Channel, error) {
	if req.ChannelID != nil {
		channel, err := repos.Channels.GetByID(ctx, *req.ChannelID)
		if err != nil {
			if errors.Is(err, store.ErrChannelNotFound) {
				return nil, fmt.Errorf("%w: channel %s", ErrNoChannel, *req.ChannelID)
			}
			return nil, fmt.Errorf("failed to load channel: %w", err)
		}
		if channel.UserID != req.UserID {
			return nil, ErrChannelNotOwned
		}
		if !channel.Eligible() {
			return nil, fmt.Errorf("%w: channel is inactive or push is disabled", ErrNoChannel)
		}
		return channel, nil
	}

	channels, err := repos.Channels.ListByUser(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("failed to list channels: %w", err)
	}
	channel, ok := domain.SelectChannel(channels)
	if !ok {
		return nil, ErrNoChannel
	}
	return channel, nil
}

// queueInitial creates the first delivery for the first content unit that
// has a deliverable card. A returning user resumes at the card their memory
// state points to.
func (s *serviceImpl) queueInitial(
	ctx context.Context,
	repos store.Repositories,
	userID, channelID uuid.UUID,
	contents []*domain.Content,
	scheduledAt, now time.Time,
) (*domain.Delivery, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	for _, c := range contents {
		seq, err := repos.Catalog.GetCardSequence(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load card sequence: %w", err)
		}
		if seq.Len() == 0 {
			log.Warn("content has no deliverable cards", slog.String("content_id", c.ID.String()))
			continue
		}

		state, err := repos.States.Get(ctx, userID, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load memory state: %w", err)
		}
		card, err := seq.At(state.CardIndex)
		if err != nil {
			return nil, err
		}

		d, err := domain.NewDelivery(userID, channelID, c.ID, card.ID, nil, scheduledAt, now)
		if err != nil {
			return nil, fmt.Errorf("failed to build initial delivery: %w", err)
		}
		if err := repos.Deliveries.Create(ctx, d); err != nil {
			return nil, fmt.Errorf("failed to queue initial delivery: %w", err)
		}
		return d, nil
	}

	log.Warn("product has no deliverable cards, nothing queued")
	return nil, nil
}

// Unsubscribe implements Service.Unsubscribe.
func (s *serviceImpl) Unsubscribe(ctx context.Context, userID, productID uuid.UUID) (*UnsubscribeResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("user_id", userID.String()),
		slog.String("product_id", productID.String()))

	result := &UnsubscribeResult{}
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		sub, err := repos.Subscriptions.Get(ctx, userID, productID)
		if err != nil {
			if errors.Is(err, store.ErrSubscriptionNotFound) {
				return ErrSubscriptionNotFound
			}
			return fmt.Errorf("failed to load subscription: %w", err)
		}
		result.Subscription = sub

		now := s.now().UTC()
		if sub.IsActive {
			sub.IsActive = false
			sub.UnsubscribedAt = &now
			sub.UpdatedAt = now
			if err := repos.Subscriptions.Update(ctx, sub); err != nil {
				return fmt.Errorf("failed to save subscription: %w", err)
			}
		}

		contentIDs, err := repos.Catalog.ListContentIDs(ctx, productID)
		if err != nil {
			return fmt.Errorf("failed to list contents: %w", err)
		}
		active, err := repos.Deliveries.ListActiveForContents(ctx, userID, contentIDs)
		if err != nil {
			return fmt.Errorf("failed to list active deliveries: %w", err)
		}
		for _, d := range active {
			if err := d.Cancel(now); err != nil {
				return err
			}
			if err := repos.Deliveries.Update(ctx, d); err != nil {
				return fmt.Errorf("failed to cancel delivery: %w", err)
			}
			result.Cancelled = append(result.Cancelled, d)
		}
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			log.Debug("unsubscribe rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to unsubscribe", slog.String("error", err.Error()))
		return nil, delivery.NewServiceError("unsubscribe", "failed to unsubscribe", err)
	}

	for _, d := range result.Cancelled {
		s.emit(ctx, events.TypeDeliveryCancelled, d)
	}

	log.Info("user unsubscribed", slog.Int("deliveries_cancelled", len(result.Cancelled)))
	return result, nil
}

func (s *serviceImpl) emit(ctx context.Context, eventType string, d *domain.Delivery) {
	event, err := events.NewEvent(eventType, delivery.PayloadFor(d))
	if err == nil {
		err = s.emitter.EmitEvent(ctx, event)
	}
	if err != nil {
		logger.FromContextOrDefault(ctx, s.logger).Error("failed to emit delivery event",
			slog.String("error", err.Error()),
			slog.String("event_type", eventType),
			slog.String("delivery_id", d.ID.String()))
	}
}

func isDomainError(err error) bool {
	return errors.Is(err, store.ErrNotFound) ||
		errors.Is(err, ErrNoChannel) ||
		errors.Is(err, domain.ErrUnauthorized) ||
		errors.Is(err, domain.ErrValidation)
}

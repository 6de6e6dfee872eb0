package delivery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/domain/backoff"
	"github.com/phrazzld/nudge-api/internal/domain/srs"
	"github.com/phrazzld/nudge-api/internal/events"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/store"
	"golang.org/x/sync/singleflight"
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
	uow        store.UnitOfWork
	srsService srs.Service
	policy     backoff.Policy
	emitter    events.EventEmitter
	now        func() time.Time
	logger     *slog.Logger

	// collapses identical concurrent submissions in this process
	feedback singleflight.Group
}

// NewService creates a delivery Service.
func NewService(
	uow store.UnitOfWork,
	srsService srs.Service,
	policy backoff.Policy,
	logger *slog.Logger,
	opts ...Option,
) (Service, error) {
	if uow == nil {
		return nil, domain.NewValidationError("uow", "cannot be nil", domain.ErrValidation)
	}
	if srsService == nil {
		return nil, domain.NewValidationError("srsService", "cannot be nil", domain.ErrValidation)
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &serviceImpl{
		uow:        uow,
		srsService: srsService,
		policy:     policy,
		emitter:    events.NopEmitter{},
		now:        time.Now,
		logger:     logger.With(slog.String("component", "delivery_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// ProcessFeedback implements Service.ProcessFeedback.
func (s *serviceImpl) ProcessFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := req.Validate(); err != nil {
		log.Debug("invalid feedback request", slog.String("error", err.Error()))
		return nil, err
	}

	// Callers sharing a flight must agree on everything the transaction
	// checks before it writes, and one caller's cancellation must not fail
	// the others.
	v, err, shared := s.feedback.Do(feedbackKey(req), func() (any, error) {
		return s.processFeedback(context.WithoutCancel(ctx), req)
	})
	if err != nil {
		return nil, err
	}

	result := *v.(*FeedbackResult)
	if shared && result.NextCard != nil {
		card := *result.NextCard
		result.NextCard = &card
	}
	return &result, nil
}

func feedbackKey(req FeedbackRequest) string {
	return req.UserID.String() + ":" + req.DeliveryID.String() + ":" + req.CardID.String()
}

func (s *serviceImpl) processFeedback(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("user_id", req.UserID.String()),
		slog.String("delivery_id", req.DeliveryID.String()))

	log.Debug("processing feedback",
		slog.String("card_id", req.CardID.String()),
		slog.Int("quality", int(req.Quality)))

	var (
		result *FeedbackResult
		next   *domain.Delivery
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.Deliveries.GetForUpdate(ctx, req.DeliveryID)
		if err != nil {
			if errors.Is(err, store.ErrDeliveryNotFound) {
				return ErrDeliveryNotFound
			}
			return fmt.Errorf("failed to load delivery: %w", err)
		}

		if current.UserID != req.UserID {
			log.Warn("feedback for delivery of another user",
				slog.String("owner_id", current.UserID.String()))
			return ErrNotOwned
		}

		if current.Status == domain.DeliveryStatusFeedbackReceived {
			result, err = replay(ctx, repos, current)
			return err
		}

		if current.CardID != req.CardID {
			return ErrCardMismatch
		}

		if !current.Status.CanTransitionTo(domain.DeliveryStatusFeedbackReceived) {
			return fmt.Errorf("%w: feedback on %s delivery", domain.ErrInvalidTransition, current.Status)
		}

		state, err := repos.States.GetForUpdate(ctx, req.UserID, current.ContentID)
		if err != nil {
			if errors.Is(err, store.ErrMemoryStateNotFound) {
				return ErrProgressNotFound
			}
			return fmt.Errorf("failed to load memory state: %w", err)
		}

		channels, err := repos.Channels.ListByUser(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("failed to list channels: %w", err)
		}
		channel, ok := domain.SelectChannel(channels)
		if !ok {
			return ErrNoChannel
		}

		seq, err := repos.Catalog.GetCardSequence(ctx, current.ContentID)
		if err != nil {
			return fmt.Errorf("failed to load card sequence: %w", err)
		}
		if seq.Len() == 0 {
			return ErrNoCards
		}

		now := s.now().UTC()
		nextState, err := s.srsService.CalculateNextState(state, req.Quality, seq.Len(), now)
		if err != nil {
			return fmt.Errorf("failed to calculate next state: %w", err)
		}

		nextCard, err := seq.At(nextState.CardIndex)
		if err != nil {
			return ErrNoCards
		}

		if err := current.MarkFeedbackReceived(req.Quality, nextState.NextReviewAt, nextCard.ID, now); err != nil {
			return err
		}
		if err := repos.Deliveries.Update(ctx, current); err != nil {
			return fmt.Errorf("failed to close delivery: %w", err)
		}

		if err := repos.States.Update(ctx, nextState); err != nil {
			return fmt.Errorf("failed to save memory state: %w", err)
		}

		previous := current.ID
		next, err = domain.NewDelivery(
			req.UserID, channel.ID, current.ContentID, nextCard.ID,
			&previous, nextState.NextReviewAt, now,
		)
		if err != nil {
			return fmt.Errorf("failed to build next delivery: %w", err)
		}
		if err := repos.Deliveries.Create(ctx, next); err != nil {
			if errors.Is(err, store.ErrActiveDeliveryExists) {
				return ErrConcurrencyConflict
			}
			return fmt.Errorf("failed to queue next delivery: %w", err)
		}

		log.Debug("memory state advanced",
			slog.Int("iteration", nextState.Iteration),
			slog.Int("interval", nextState.Interval),
			slog.Float64("easiness", nextState.Easiness),
			slog.Int("card_index", nextState.CardIndex))

		result = &FeedbackResult{NextReviewAt: nextState.NextReviewAt, NextCard: nextCard}
		return nil
	})

	if errors.Is(err, ErrConcurrencyConflict) {
		log.Info("feedback lost a concurrent race, replaying winner")
		return s.replayAfterConflict(ctx, req)
	}
	if err != nil {
		if isDomainError(err) {
			log.Debug("feedback rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to process feedback", slog.String("error", err.Error()))
		return nil, NewServiceError("process_feedback", "failed to process feedback", err)
	}

	if result.Replayed {
		log.Debug("duplicate feedback, returned stored result")
		return result, nil
	}

	s.emit(ctx, events.TypeDeliveryScheduled, next)
	log.Info("feedback processed",
		slog.String("next_delivery_id", next.ID.String()),
		slog.String("next_card_id", result.NextCard.ID.String()),
		slog.Time("next_review_at", result.NextReviewAt))
	return result, nil
}

// replayAfterConflict answers a submission whose transaction lost to another
// writer. If the winner answered the same delivery its result is returned.
func (s *serviceImpl) replayAfterConflict(ctx context.Context, req FeedbackRequest) (*FeedbackResult, error) {
	var result *FeedbackResult
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		current, err := repos.Deliveries.GetByID(ctx, req.DeliveryID)
		if err != nil {
			return err
		}
		if current.UserID != req.UserID {
			return ErrNotOwned
		}
		if current.Status != domain.DeliveryStatusFeedbackReceived {
			return ErrConcurrencyConflict
		}
		result, err = replay(ctx, repos, current)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) || isDomainError(err) {
			return nil, err
		}
		return nil, NewServiceError("process_feedback", "concurrent feedback could not be resolved", err)
	}
	return result, nil
}

// replay rebuilds the result stored on an answered delivery.
func replay(ctx context.Context, repos store.Repositories, d *domain.Delivery) (*FeedbackResult, error) {
	if d.ResultNextReviewAt == nil || d.ResultNextCardID == nil {
		return nil, fmt.Errorf("answered delivery %s has no stored result", d.ID)
	}
	card, err := repos.Catalog.GetCard(ctx, *d.ResultNextCardID)
	if err != nil {
		return nil, fmt.Errorf("failed to load next card: %w", err)
	}
	return &FeedbackResult{
		NextReviewAt: *d.ResultNextReviewAt,
		NextCard:     card,
		Replayed:     true,
	}, nil
}

// RecordSendResult implements Service.RecordSendResult.
func (s *serviceImpl) RecordSendResult(
	ctx context.Context,
	deliveryID uuid.UUID,
	outcome SendOutcome,
) (*domain.Delivery, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("delivery_id", deliveryID.String()),
		slog.String("outcome", string(outcome.Kind)))

	if !outcome.Valid() {
		return nil, ErrInvalidOutcome
	}

	var (
		updated *domain.Delivery
		changed bool
	)
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		d, err := repos.Deliveries.GetForUpdate(ctx, deliveryID)
		if err != nil {
			if errors.Is(err, store.ErrDeliveryNotFound) {
				return ErrDeliveryNotFound
			}
			return fmt.Errorf("failed to load delivery: %w", err)
		}

		now := s.now().UTC()
		switch outcome.Kind {
		case OutcomeSent:
			if d.SentAt != nil && !d.Status.CanTransitionTo(domain.DeliveryStatusSent) {
				// worker re-reported a send we already recorded
				updated = d
				return nil
			}
			err = d.MarkSent(now)
		case OutcomeTransientFailure:
			if at, ok := s.policy.NextRetryAt(d.RetryCount, now); ok {
				err = d.MarkRetryRequired(outcome.Error, at, now)
			} else {
				err = d.MarkFailed(fmt.Sprintf("retries exhausted: %s", outcome.Error), now)
			}
		case OutcomePermanentFailure:
			err = d.MarkFailed(outcome.Error, now)
		}
		if err != nil {
			return err
		}

		if err := repos.Deliveries.Update(ctx, d); err != nil {
			return fmt.Errorf("failed to save delivery: %w", err)
		}
		updated = d
		changed = true
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			log.Debug("send result rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to record send result", slog.String("error", err.Error()))
		return nil, NewServiceError("record_send_result", "failed to record send result", err)
	}

	if changed {
		switch updated.Status {
		case domain.DeliveryStatusRetryRequired:
			s.emit(ctx, events.TypeDeliveryRetryScheduled, updated)
		case domain.DeliveryStatusFailed:
			s.emit(ctx, events.TypeDeliveryFailed, updated)
		}
	}

	log.Debug("send result recorded",
		slog.String("status", string(updated.Status)),
		slog.Int("retry_count", updated.RetryCount))
	return updated, nil
}

// MarkOpened implements Service.MarkOpened.
func (s *serviceImpl) MarkOpened(ctx context.Context, userID, deliveryID uuid.UUID) (*domain.Delivery, error) {
	log := logger.FromContextOrDefault(ctx, s.logger).With(
		slog.String("user_id", userID.String()),
		slog.String("delivery_id", deliveryID.String()))

	var updated *domain.Delivery
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		d, err := repos.Deliveries.GetForUpdate(ctx, deliveryID)
		if err != nil {
			if errors.Is(err, store.ErrDeliveryNotFound) {
				return ErrDeliveryNotFound
			}
			return fmt.Errorf("failed to load delivery: %w", err)
		}
		if d.UserID != userID {
			return ErrNotOwned
		}

		if d.OpenedAt != nil &&
			(d.Status == domain.DeliveryStatusOpened || d.Status == domain.DeliveryStatusFeedbackReceived) {
			updated = d
			return nil
		}

		if err := d.MarkOpened(s.now()); err != nil {
			return err
		}
		if err := repos.Deliveries.Update(ctx, d); err != nil {
			return fmt.Errorf("failed to save delivery: %w", err)
		}
		updated = d
		return nil
	})
	if err != nil {
		if isDomainError(err) {
			log.Debug("open rejected", slog.String("error", err.Error()))
			return nil, err
		}
		log.Error("failed to mark delivery opened", slog.String("error", err.Error()))
		return nil, NewServiceError("mark_opened", "failed to mark delivery opened", err)
	}
	return updated, nil
}

// ListDue implements Service.ListDue.
func (s *serviceImpl) ListDue(ctx context.Context, limit int) ([]*domain.Delivery, error) {
	var due []*domain.Delivery
	err := s.uow.Do(ctx, func(ctx context.Context, repos store.Repositories) error {
		var err error
		due, err = repos.Deliveries.ListDue(ctx, s.now().UTC(), limit)
		return err
	})
	if err != nil {
		return nil, NewServiceError("list_due", "failed to list due deliveries", err)
	}
	return due, nil
}

// emit publishes a delivery event. Failures are logged, never returned:
// the change is already committed.
func (s *serviceImpl) emit(ctx context.Context, eventType string, d *domain.Delivery) {
	event, err := events.NewEvent(eventType, PayloadFor(d))
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

// PayloadFor builds the event payload describing d.
func PayloadFor(d *domain.Delivery) events.DeliveryPayload {
	return events.DeliveryPayload{
		DeliveryID:  d.ID,
		UserID:      d.UserID,
		ContentID:   d.ContentID,
		CardID:      d.CardID,
		ChannelID:   d.ChannelID,
		Status:      string(d.Status),
		ScheduledAt: d.ScheduledAt,
		RetryCount:  d.RetryCount,
		NextRetryAt: d.NextRetryAt,
		LastError:   d.LastError,
	}
}

package delivery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/domain/backoff"
	"github.com/phrazzld/nudge-api/internal/domain/srs"
	"github.com/phrazzld/nudge-api/internal/events"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/store"
	"github.com/phrazzld/nudge-api/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

// recordingHandler collects emitted events.
type recordingHandler struct {
	mu     sync.Mutex
	events []*events.Event
}

func (h *recordingHandler) HandleEvent(_ context.Context, e *events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	return nil
}

func (h *recordingHandler) types() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.Type
	}
	return out
}

// fixture is one user subscribed to one content unit with a sent delivery
// for the first card.
type fixture struct {
	store    *memstore.Store
	service  Service
	handler  *recordingHandler
	userID   uuid.UUID
	channel  *domain.Channel
	content  *domain.Content
	cards    []*domain.Card
	delivery *domain.Delivery
}

func newFixture(t *testing.T, cardCount int) *fixture {
	t.Helper()

	st := memstore.New()
	userID := uuid.New()

	product := &domain.Product{ID: uuid.New(), Name: "Core Vocabulary", IsActive: true}
	st.AddProduct(product)

	content := &domain.Content{
		ID:          uuid.New(),
		ProductID:   product.ID,
		Name:        "serendipity",
		ContentType: "word",
		IsActive:    true,
	}
	st.AddContent(content)

	cardTypes := []domain.CardType{
		domain.CardTypeMeaningPronunciation,
		domain.CardTypeExampleSentence,
		domain.CardTypeEtymology,
		domain.CardTypeSynonymAntonym,
		domain.CardTypeImage,
	}
	cards := make([]*domain.Card, cardCount)
	for i := range cards {
		cards[i] = &domain.Card{
			ID:           uuid.New(),
			ContentID:    content.ID,
			Type:         cardTypes[i%len(cardTypes)],
			DisplayOrder: i,
		}
		st.AddCard(cards[i], true, true)
	}

	channel := &domain.Channel{
		ID:          uuid.New(),
		UserID:      userID,
		Type:        domain.ChannelTypeTelegram,
		Identifier:  "12345",
		IsActive:    true,
		PushEnabled: true,
		IsPrimary:   true,
		CreatedAt:   fixedNow.Add(-24 * time.Hour),
	}
	st.AddChannel(channel)

	state, err := domain.NewMemoryState(userID, content.ID, fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	st.PutMemoryState(state)

	d, err := domain.NewDelivery(userID, channel.ID, content.ID, cards[0].ID, nil, fixedNow.Add(-time.Hour), fixedNow.Add(-time.Hour))
	require.NoError(t, err)
	require.NoError(t, d.MarkSent(fixedNow.Add(-time.Hour)))
	st.PutDelivery(d)

	handler := &recordingHandler{}
	emitter := events.NewInMemoryEventEmitter(nil)
	emitter.RegisterHandler(handler)

	_, log := logger.NewTestLogger(t)
	srsService, err := srs.NewDefaultService()
	require.NoError(t, err)

	svc, err := NewService(st, srsService, backoff.NewDefaultPolicy(), log,
		WithClock(func() time.Time { return fixedNow }),
		WithEmitter(emitter))
	require.NoError(t, err)

	return &fixture{
		store:    st,
		service:  svc,
		handler:  handler,
		userID:   userID,
		channel:  channel,
		content:  content,
		cards:    cards,
		delivery: d,
	}
}

func (f *fixture) request(quality domain.Quality) FeedbackRequest {
	return FeedbackRequest{
		UserID:     f.userID,
		DeliveryID: f.delivery.ID,
		CardID:     f.delivery.CardID,
		Quality:    quality,
	}
}

// activeDelivery returns the user's single non-terminal delivery.
func (f *fixture) activeDelivery(t *testing.T) *domain.Delivery {
	t.Helper()
	var active []*domain.Delivery
	for _, d := range f.store.DeliveriesOf(f.userID) {
		if !d.Status.Terminal() {
			active = append(active, d)
		}
	}
	require.Len(t, active, 1, "expected exactly one active delivery")
	return active[0]
}

func TestNewService(t *testing.T) {
	t.Parallel()
	srsService, err := srs.NewDefaultService()
	require.NoError(t, err)

	t.Run("nil unit of work", func(t *testing.T) {
		t.Parallel()
		_, err := NewService(nil, srsService, backoff.NewDefaultPolicy(), nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("nil srs service", func(t *testing.T) {
		t.Parallel()
		_, err := NewService(memstore.New(), nil, backoff.NewDefaultPolicy(), nil)
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("invalid policy", func(t *testing.T) {
		t.Parallel()
		_, err := NewService(memstore.New(), srsService, backoff.Policy{}, nil)
		assert.ErrorIs(t, err, backoff.ErrInvalidPolicy)
	})
}

func TestProcessFeedback(t *testing.T) {
	t.Parallel()

	t.Run("advances state and queues next card", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 3)

		result, err := f.service.ProcessFeedback(context.Background(), f.request(5))
		require.NoError(t, err)
		assert.False(t, result.Replayed)
		assert.Equal(t, fixedNow.AddDate(0, 0, 1), result.NextReviewAt)
		require.NotNil(t, result.NextCard)
		assert.Equal(t, f.cards[1].ID, result.NextCard.ID)
		assert.Equal(t, "serendipity", result.NextCard.ContentName)

		state := f.store.MemoryState(f.userID, f.content.ID)
		require.NotNil(t, state)
		assert.Equal(t, 1, state.Iteration)
		assert.Equal(t, 1, state.Interval)
		assert.InDelta(t, 2.6, state.Easiness, 1e-9)
		assert.Equal(t, 1, state.CardIndex)
		assert.Equal(t, 1, state.ReviewCount)

		answered := f.store.Delivery(f.delivery.ID)
		assert.Equal(t, domain.DeliveryStatusFeedbackReceived, answered.Status)
		require.NotNil(t, answered.FeedbackQuality)
		assert.Equal(t, domain.Quality(5), *answered.FeedbackQuality)

		next := f.activeDelivery(t)
		assert.Equal(t, domain.DeliveryStatusPending, next.Status)
		assert.Equal(t, f.cards[1].ID, next.CardID)
		assert.Equal(t, f.channel.ID, next.ChannelID)
		assert.Equal(t, result.NextReviewAt, next.ScheduledAt)
		require.NotNil(t, next.PreviousDeliveryID)
		assert.Equal(t, f.delivery.ID, *next.PreviousDeliveryID)

		assert.Equal(t, []string{events.TypeDeliveryScheduled}, f.handler.types())
	})

	t.Run("feedback on opened delivery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)
		_, err := f.service.MarkOpened(context.Background(), f.userID, f.delivery.ID)
		require.NoError(t, err)

		_, err = f.service.ProcessFeedback(context.Background(), f.request(4))
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryStatusFeedbackReceived, f.store.Delivery(f.delivery.ID).Status)
	})

	t.Run("single card sequence stays on the same card", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 1)

		result, err := f.service.ProcessFeedback(context.Background(), f.request(3))
		require.NoError(t, err)
		assert.Equal(t, f.cards[0].ID, result.NextCard.ID)
		assert.Equal(t, 0, f.store.MemoryState(f.userID, f.content.ID).CardIndex)
	})
}

func TestProcessFeedbackIdempotent(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	ctx := context.Background()

	first, err := f.service.ProcessFeedback(ctx, f.request(5))
	require.NoError(t, err)
	stateAfterFirst := f.store.MemoryState(f.userID, f.content.ID)

	second, err := f.service.ProcessFeedback(ctx, f.request(5))
	require.NoError(t, err)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.NextReviewAt, second.NextReviewAt)
	assert.Equal(t, first.NextCard.ID, second.NextCard.ID)

	// A replay with a different quality does not reprocess either.
	third, err := f.service.ProcessFeedback(ctx, f.request(0))
	require.NoError(t, err)
	assert.True(t, third.Replayed)

	assert.Equal(t, stateAfterFirst, f.store.MemoryState(f.userID, f.content.ID))
	assert.Len(t, f.store.DeliveriesOf(f.userID), 2)
	assert.Equal(t, []string{events.TypeDeliveryScheduled}, f.handler.types())
}

func TestProcessFeedbackConcurrentSubmissions(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)

	const submitters = 8
	results := make([]*FeedbackResult, submitters)
	errs := make([]error, submitters)

	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.service.ProcessFeedback(context.Background(), f.request(4))
		}(i)
	}
	wg.Wait()

	for i := 0; i < submitters; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].NextReviewAt, results[i].NextReviewAt)
		assert.Equal(t, results[0].NextCard.ID, results[i].NextCard.ID)
	}

	state := f.store.MemoryState(f.userID, f.content.ID)
	assert.Equal(t, 1, state.ReviewCount)
	assert.Len(t, f.store.DeliveriesOf(f.userID), 2)
	f.activeDelivery(t)
}

// gatedUnitOfWork holds the first unit of work until release is closed.
type gatedUnitOfWork struct {
	inner   store.UnitOfWork
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedUnitOfWork(inner store.UnitOfWork) *gatedUnitOfWork {
	return &gatedUnitOfWork{
		inner:   inner,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (g *gatedUnitOfWork) Do(ctx context.Context, fn store.UnitOfWorkFn) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.release
	}
	return g.inner.Do(ctx, fn)
}

func newGatedService(t *testing.T, f *fixture) (Service, *gatedUnitOfWork) {
	t.Helper()
	gate := newGatedUnitOfWork(f.store)
	srsService, err := srs.NewDefaultService()
	require.NoError(t, err)
	_, log := logger.NewTestLogger(t)
	svc, err := NewService(gate, srsService, backoff.NewDefaultPolicy(), log,
		WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return svc, gate
}

func TestProcessFeedbackInFlightOwnerCheck(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	svc, gate := newGatedService(t, f)

	type outcome struct {
		result *FeedbackResult
		err    error
	}
	ownerDone := make(chan outcome, 1)
	go func() {
		res, err := svc.ProcessFeedback(context.Background(), f.request(5))
		ownerDone <- outcome{res, err}
	}()
	<-gate.entered

	other := f.request(5)
	other.UserID = uuid.New()
	res, err := svc.ProcessFeedback(context.Background(), other)
	assert.ErrorIs(t, err, ErrNotOwned)
	assert.Nil(t, res)

	close(gate.release)
	owner := <-ownerDone
	require.NoError(t, owner.err)
	assert.False(t, owner.result.Replayed)
	assert.Equal(t, f.cards[1].ID, owner.result.NextCard.ID)
}

func TestProcessFeedbackIgnoresCallerCancellation(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	svc, gate := newGatedService(t, f)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.ProcessFeedback(ctx, f.request(4))
		done <- err
	}()
	<-gate.entered
	cancel()
	close(gate.release)

	require.NoError(t, <-done)
	assert.Equal(t, 1, f.store.MemoryState(f.userID, f.content.ID).ReviewCount)
	assert.Len(t, f.store.DeliveriesOf(f.userID), 2)
}

func TestFeedbackKey(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)

	base := f.request(4)
	otherUser := base
	otherUser.UserID = uuid.New()
	otherCard := base
	otherCard.CardID = uuid.New()
	otherQuality := base
	otherQuality.Quality = 1

	assert.NotEqual(t, feedbackKey(base), feedbackKey(otherUser))
	assert.NotEqual(t, feedbackKey(base), feedbackKey(otherCard))
	// The first answer wins regardless of quality, as with a replay.
	assert.Equal(t, feedbackKey(base), feedbackKey(otherQuality))
}

func TestProcessFeedbackAtomicity(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		faults memstore.Faults
	}{
		{name: "queueing next delivery fails", faults: memstore.Faults{CreateDelivery: errors.New("disk full")}},
		{name: "saving memory state fails", faults: memstore.Faults{UpdateMemoryState: errors.New("disk full")}},
		{name: "closing delivery fails", faults: memstore.Faults{UpdateDelivery: errors.New("disk full")}},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 3)
			before := f.store.MemoryState(f.userID, f.content.ID)
			f.store.SetFaults(tc.faults)

			result, err := f.service.ProcessFeedback(context.Background(), f.request(5))
			require.Error(t, err)
			assert.Nil(t, result)

			var svcErr *ServiceError
			assert.True(t, errors.As(err, &svcErr))
			assert.Equal(t, "process_feedback", svcErr.Operation)

			assert.Equal(t, before, f.store.MemoryState(f.userID, f.content.ID))
			assert.Equal(t, domain.DeliveryStatusSent, f.store.Delivery(f.delivery.ID).Status)
			assert.Len(t, f.store.DeliveriesOf(f.userID), 1)
			assert.Empty(t, f.handler.types())
		})
	}
}

func TestProcessFeedbackErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		mutate  func(t *testing.T, f *fixture, req *FeedbackRequest)
		wantErr error
	}{
		{
			name:    "invalid quality",
			mutate:  func(_ *testing.T, _ *fixture, req *FeedbackRequest) { req.Quality = 6 },
			wantErr: domain.ErrInvalidQuality,
		},
		{
			name:    "missing delivery id",
			mutate:  func(_ *testing.T, _ *fixture, req *FeedbackRequest) { req.DeliveryID = uuid.Nil },
			wantErr: domain.ErrValidation,
		},
		{
			name:    "unknown delivery",
			mutate:  func(_ *testing.T, _ *fixture, req *FeedbackRequest) { req.DeliveryID = uuid.New() },
			wantErr: ErrDeliveryNotFound,
		},
		{
			name:    "delivery of another user",
			mutate:  func(_ *testing.T, _ *fixture, req *FeedbackRequest) { req.UserID = uuid.New() },
			wantErr: ErrNotOwned,
		},
		{
			name:    "card mismatch",
			mutate:  func(_ *testing.T, f *fixture, req *FeedbackRequest) { req.CardID = f.cards[1].ID },
			wantErr: domain.ErrValidation,
		},
		{
			name: "no eligible channel",
			mutate: func(_ *testing.T, f *fixture, _ *FeedbackRequest) {
				disabled := *f.channel
				disabled.PushEnabled = false
				f.store.AddChannel(&disabled)
			},
			wantErr: ErrNoChannel,
		},
		{
			name: "delivery not yet sent",
			mutate: func(t *testing.T, f *fixture, req *FeedbackRequest) {
				pending := f.delivery.Clone()
				pending.Status = domain.DeliveryStatusPending
				pending.SentAt = nil
				f.store.PutDelivery(pending)
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name: "cancelled delivery",
			mutate: func(t *testing.T, f *fixture, req *FeedbackRequest) {
				cancelled := f.delivery.Clone()
				require.NoError(t, cancelled.Cancel(fixedNow))
				f.store.PutDelivery(cancelled)
			},
			wantErr: domain.ErrInvalidTransition,
		},
		{
			name: "memory state missing",
			mutate: func(_ *testing.T, f *fixture, req *FeedbackRequest) {
				other := f.delivery.Clone()
				other.ID = uuid.New()
				other.ContentID = uuid.New()
				f.store.PutDelivery(other)
				req.DeliveryID = other.ID
			},
			wantErr: ErrProgressNotFound,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, 3)
			before := f.store.MemoryState(f.userID, f.content.ID)
			req := f.request(4)
			tc.mutate(t, f, &req)

			result, err := f.service.ProcessFeedback(context.Background(), req)
			assert.ErrorIs(t, err, tc.wantErr)
			assert.Nil(t, result)
			assert.Equal(t, before, f.store.MemoryState(f.userID, f.content.ID))
			assert.Empty(t, f.handler.types())
		})
	}
}

func TestProcessFeedbackNoCards(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 1)
	// Deactivate the only card after it was delivered.
	f.store.AddCard(f.cards[0], false, true)

	_, err := f.service.ProcessFeedback(context.Background(), f.request(4))
	assert.ErrorIs(t, err, ErrNoCards)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestProcessFeedbackActiveDeliveryConflict(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)

	// A second live delivery for the same content makes queueing impossible.
	stray := f.delivery.Clone()
	stray.ID = uuid.New()
	stray.Status = domain.DeliveryStatusPending
	stray.SentAt = nil
	f.store.PutDelivery(stray)

	_, err := f.service.ProcessFeedback(context.Background(), f.request(4))
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
	assert.Equal(t, domain.DeliveryStatusSent, f.store.Delivery(f.delivery.ID).Status)
	assert.Equal(t, 0, f.store.MemoryState(f.userID, f.content.ID).ReviewCount)
}

// Drives one content unit through several review cycles, the worker
// reporting each send, and checks SM-2 values and card rotation.
func TestReviewCycle(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 3)
	ctx := context.Background()

	steps := []struct {
		quality   domain.Quality
		iteration int
		interval  int
		easiness  float64
		cardIndex int
	}{
		{quality: 5, iteration: 1, interval: 1, easiness: 2.6, cardIndex: 1},
		{quality: 5, iteration: 2, interval: 6, easiness: 2.7, cardIndex: 2},
		{quality: 2, iteration: 0, interval: 1, easiness: 2.38, cardIndex: 0},
		{quality: 4, iteration: 1, interval: 1, easiness: 2.38, cardIndex: 1},
	}

	current := f.delivery
	for i, step := range steps {
		t.Run(fmt.Sprintf("review %d", i+1), func(t *testing.T) {
			result, err := f.service.ProcessFeedback(ctx, FeedbackRequest{
				UserID:     f.userID,
				DeliveryID: current.ID,
				CardID:     current.CardID,
				Quality:    step.quality,
			})
			require.NoError(t, err)

			state := f.store.MemoryState(f.userID, f.content.ID)
			assert.Equal(t, step.iteration, state.Iteration)
			assert.Equal(t, step.interval, state.Interval)
			assert.InDelta(t, step.easiness, state.Easiness, 1e-9)
			assert.Equal(t, step.cardIndex, state.CardIndex)
			assert.Equal(t, f.cards[step.cardIndex].ID, result.NextCard.ID)

			next := f.activeDelivery(t)
			sent, err := f.service.RecordSendResult(ctx, next.ID, SendOutcome{Kind: OutcomeSent})
			require.NoError(t, err)
			assert.Equal(t, domain.DeliveryStatusSent, sent.Status)
			current = sent
		})
	}

	assert.Len(t, f.store.DeliveriesOf(f.userID), len(steps)+1)
}

func TestRecordSendResult(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	// pendingFixture replaces the sent delivery with a pending one.
	pendingFixture := func(t *testing.T) *fixture {
		f := newFixture(t, 2)
		d := f.delivery.Clone()
		d.Status = domain.DeliveryStatusPending
		d.SentAt = nil
		f.store.PutDelivery(d)
		f.delivery = d
		return f
	}

	t.Run("sent", func(t *testing.T) {
		t.Parallel()
		f := pendingFixture(t)

		d, err := f.service.RecordSendResult(ctx, f.delivery.ID, SendOutcome{Kind: OutcomeSent})
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryStatusSent, d.Status)
		require.NotNil(t, d.SentAt)
		assert.Equal(t, fixedNow, *d.SentAt)
	})

	t.Run("sent reported twice", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		d, err := f.service.RecordSendResult(ctx, f.delivery.ID, SendOutcome{Kind: OutcomeSent})
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryStatusSent, d.Status)
		assert.Equal(t, f.delivery.SentAt, d.SentAt)
	})

	t.Run("transient failure schedules backoff", func(t *testing.T) {
		t.Parallel()
		f := pendingFixture(t)
		policy := backoff.NewDefaultPolicy()

		for attempt := 0; attempt < 3; attempt++ {
			d, err := f.service.RecordSendResult(ctx, f.delivery.ID,
				SendOutcome{Kind: OutcomeTransientFailure, Error: "timeout"})
			require.NoError(t, err)
			assert.Equal(t, domain.DeliveryStatusRetryRequired, d.Status)
			assert.Equal(t, attempt+1, d.RetryCount)
			assert.Equal(t, "timeout", d.LastError)

			want, ok := policy.NextRetryAt(attempt, fixedNow)
			require.True(t, ok)
			require.NotNil(t, d.NextRetryAt)
			assert.Equal(t, want, *d.NextRetryAt)
		}

		types := f.handler.types()
		assert.Len(t, types, 3)
		for _, typ := range types {
			assert.Equal(t, events.TypeDeliveryRetryScheduled, typ)
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		t.Parallel()
		f := pendingFixture(t)
		policy := backoff.NewDefaultPolicy()

		var d *domain.Delivery
		var err error
		for attempt := 0; attempt <= policy.MaxRetries; attempt++ {
			d, err = f.service.RecordSendResult(ctx, f.delivery.ID,
				SendOutcome{Kind: OutcomeTransientFailure, Error: "timeout"})
			require.NoError(t, err)
		}
		assert.Equal(t, domain.DeliveryStatusFailed, d.Status)
		assert.Equal(t, policy.MaxRetries, d.RetryCount)
		assert.Contains(t, d.LastError, "retries exhausted")
		assert.Nil(t, d.NextRetryAt)
		assert.Contains(t, f.handler.types(), events.TypeDeliveryFailed)

		// A failed delivery frees the content for a new one.
		assert.Empty(t, activeOf(f))
	})

	t.Run("permanent failure", func(t *testing.T) {
		t.Parallel()
		f := pendingFixture(t)

		d, err := f.service.RecordSendResult(ctx, f.delivery.ID,
			SendOutcome{Kind: OutcomePermanentFailure, Error: "chat not found"})
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryStatusFailed, d.Status)
		assert.Equal(t, "chat not found", d.LastError)
		assert.Equal(t, []string{events.TypeDeliveryFailed}, f.handler.types())
	})

	t.Run("failure after send is rejected", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		_, err := f.service.RecordSendResult(ctx, f.delivery.ID,
			SendOutcome{Kind: OutcomePermanentFailure, Error: "late"})
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
		assert.Equal(t, domain.DeliveryStatusSent, f.store.Delivery(f.delivery.ID).Status)
	})

	t.Run("unknown outcome", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		_, err := f.service.RecordSendResult(ctx, f.delivery.ID, SendOutcome{Kind: "bounced"})
		assert.ErrorIs(t, err, domain.ErrValidation)
	})

	t.Run("unknown delivery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		_, err := f.service.RecordSendResult(ctx, uuid.New(), SendOutcome{Kind: OutcomeSent})
		assert.ErrorIs(t, err, ErrDeliveryNotFound)
	})
}

func activeOf(f *fixture) []*domain.Delivery {
	var active []*domain.Delivery
	for _, d := range f.store.DeliveriesOf(f.userID) {
		if !d.Status.Terminal() {
			active = append(active, d)
		}
	}
	return active
}

func TestMarkOpened(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("opens sent delivery", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		d, err := f.service.MarkOpened(ctx, f.userID, f.delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.DeliveryStatusOpened, d.Status)
		require.NotNil(t, d.OpenedAt)
		assert.Equal(t, fixedNow, *d.OpenedAt)
	})

	t.Run("second open is a no-op", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		first, err := f.service.MarkOpened(ctx, f.userID, f.delivery.ID)
		require.NoError(t, err)
		second, err := f.service.MarkOpened(ctx, f.userID, f.delivery.ID)
		require.NoError(t, err)
		assert.Equal(t, first.OpenedAt, second.OpenedAt)
	})

	t.Run("another user", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)

		_, err := f.service.MarkOpened(ctx, uuid.New(), f.delivery.ID)
		assert.ErrorIs(t, err, ErrNotOwned)
		assert.ErrorIs(t, err, domain.ErrUnauthorized)
	})

	t.Run("pending delivery cannot be opened", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, 2)
		d := f.delivery.Clone()
		d.Status = domain.DeliveryStatusPending
		d.SentAt = nil
		f.store.PutDelivery(d)

		_, err := f.service.MarkOpened(ctx, f.userID, f.delivery.ID)
		assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	})
}

func TestListDue(t *testing.T) {
	t.Parallel()
	f := newFixture(t, 2)
	ctx := context.Background()

	due, err := f.service.ListDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "sent deliveries are not due")

	_, err = f.service.ProcessFeedback(ctx, f.request(5))
	require.NoError(t, err)

	due, err = f.service.ListDue(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due, "next delivery is scheduled a day ahead")

	// Move the clock past the scheduled time.
	srsService, err := srs.NewDefaultService()
	require.NoError(t, err)
	later, err := NewService(f.store, srsService, backoff.NewDefaultPolicy(), nil,
		WithClock(func() time.Time { return fixedNow.AddDate(0, 0, 2) }))
	require.NoError(t, err)

	due, err = later.ListDue(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, domain.DeliveryStatusPending, due[0].Status)
}

func TestOutcomeFromError(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		err  error
		want OutcomeKind
	}{
		{name: "nil", err: nil, want: OutcomeSent},
		{name: "permanent", err: fmt.Errorf("chat blocked: %w", ErrPermanentDelivery), want: OutcomePermanentFailure},
		{name: "transient", err: fmt.Errorf("timeout: %w", ErrTransientDelivery), want: OutcomeTransientFailure},
		{name: "unclassified", err: errors.New("connection reset"), want: OutcomeTransientFailure},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			outcome := OutcomeFromError(tc.err)
			assert.Equal(t, tc.want, outcome.Kind)
			assert.True(t, outcome.Valid())
			if tc.err != nil {
				assert.Equal(t, tc.err.Error(), outcome.Error)
			}
		})
	}
}

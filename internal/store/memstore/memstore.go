// Package memstore is an in-memory implementation of store.UnitOfWork.
//
// Every unit of work runs against a private copy of the data and the copy
// replaces the shared data only when the work succeeds, so a failed unit of
// work leaves no trace. Units of work are serialized, which gives the same
// guarantees row locks give the PostgreSQL stores. It is meant for tests.
package memstore

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/domain"
	"github.com/phrazzld/nudge-api/internal/store"
)

type stateKey struct {
	userID    uuid.UUID
	contentID uuid.UUID
}

type cardRow struct {
	card     *domain.Card
	isActive bool
	isValid  bool
}

type data struct {
	products      map[uuid.UUID]*domain.Product
	contents      map[uuid.UUID]*domain.Content
	cards         map[uuid.UUID]cardRow
	channels      map[uuid.UUID]*domain.Channel
	subscriptions map[stateKey]*domain.Subscription
	states        map[stateKey]*domain.MemoryState
	deliveries    map[uuid.UUID]*domain.Delivery
}

func newData() *data {
	return &data{
		products:      map[uuid.UUID]*domain.Product{},
		contents:      map[uuid.UUID]*domain.Content{},
		cards:         map[uuid.UUID]cardRow{},
		channels:      map[uuid.UUID]*domain.Channel{},
		subscriptions: map[stateKey]*domain.Subscription{},
		states:        map[stateKey]*domain.MemoryState{},
		deliveries:    map[uuid.UUID]*domain.Delivery{},
	}
}

// clone copies every mutable row. Catalog and channel rows are never
// written through the stores and are shared.
func (d *data) clone() *data {
	c := newData()
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.contents {
		c.contents[k] = v
	}
	for k, v := range d.cards {
		c.cards[k] = v
	}
	for k, v := range d.channels {
		c.channels[k] = v
	}
	for k, v := range d.subscriptions {
		s := *v
		c.subscriptions[k] = &s
	}
	for k, v := range d.states {
		c.states[k] = v.Clone()
	}
	for k, v := range d.deliveries {
		c.deliveries[k] = v.Clone()
	}
	return c
}

// Faults injects errors into store calls. A nil field means no fault.
type Faults struct {
	CreateDelivery    error
	UpdateDelivery    error
	UpdateMemoryState error
}

// Store is an in-memory store.UnitOfWork.
type Store struct {
	mu     sync.Mutex
	data   *data
	faults Faults
}

// Ensure Store implements store.UnitOfWork interface
var _ store.UnitOfWork = (*Store)(nil)

// New creates an empty Store.
func New() *Store {
	return &Store{data: newData()}
}

// SetFaults replaces the injected faults.
func (s *Store) SetFaults(f Faults) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults = f
}

// Do implements store.UnitOfWork.Do
func (s *Store) Do(ctx context.Context, fn store.UnitOfWorkFn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	work := s.data.clone()
	if err := fn(ctx, s.repos(work)); err != nil {
		return err
	}
	s.data = work
	return nil
}

func (s *Store) repos(d *data) store.Repositories {
	return store.Repositories{
		States:        &stateStore{d: d, faults: s.faults},
		Deliveries:    &deliveryStore{d: d, faults: s.faults},
		Channels:      &channelStore{d: d},
		Catalog:       &catalogStore{d: d},
		Subscriptions: &subscriptionStore{d: d},
	}
}

// Seeding and inspection helpers.

// AddProduct stores a product.
func (s *Store) AddProduct(p *domain.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.products[p.ID] = p
}

// AddContent stores a content unit.
func (s *Store) AddContent(c *domain.Content) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.contents[c.ID] = c
}

// AddCard stores a card. Only active and valid cards appear in sequences.
func (s *Store) AddCard(c *domain.Card, active, valid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.cards[c.ID] = cardRow{card: c, isActive: active, isValid: valid}
}

// AddChannel stores a channel.
func (s *Store) AddChannel(c *domain.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.channels[c.ID] = c
}

// PutMemoryState stores a copy of state, replacing any existing row.
func (s *Store) PutMemoryState(state *domain.MemoryState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.states[stateKey{state.UserID, state.ContentID}] = state.Clone()
}

// PutDelivery stores a copy of d, replacing any existing row.
func (s *Store) PutDelivery(d *domain.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.deliveries[d.ID] = d.Clone()
}

// MemoryState returns a copy of the committed state, or nil.
func (s *Store) MemoryState(userID, contentID uuid.UUID) *domain.MemoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st, ok := s.data.states[stateKey{userID, contentID}]; ok {
		return st.Clone()
	}
	return nil
}

// MemoryStates returns copies of the user's committed states.
func (s *Store) MemoryStates(userID uuid.UUID) []*domain.MemoryState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.MemoryState{}
	for k, st := range s.data.states {
		if k.userID == userID {
			out = append(out, st.Clone())
		}
	}
	return out
}

// Delivery returns a copy of a committed delivery, or nil.
func (s *Store) Delivery(id uuid.UUID) *domain.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.data.deliveries[id]; ok {
		return d.Clone()
	}
	return nil
}

// DeliveriesOf returns copies of the user's committed deliveries, oldest first.
func (s *Store) DeliveriesOf(userID uuid.UUID) []*domain.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*domain.Delivery{}
	for _, d := range s.data.deliveries {
		if d.UserID == userID {
			out = append(out, d.Clone())
		}
	}
	sortDeliveries(out, func(d *domain.Delivery) time.Time { return d.CreatedAt })
	return out
}

// Subscription returns a copy of the committed subscription, or nil.
func (s *Store) Subscription(userID, productID uuid.UUID) *domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sub, ok := s.data.subscriptions[stateKey{userID, productID}]; ok {
		c := *sub
		return &c
	}
	return nil
}

func sortDeliveries(ds []*domain.Delivery, key func(*domain.Delivery) time.Time) {
	sort.Slice(ds, func(i, j int) bool {
		ki, kj := key(ds[i]), key(ds[j])
		if !ki.Equal(kj) {
			return ki.Before(kj)
		}
		return ds[i].ID.String() < ds[j].ID.String()
	})
}

// memory state store

type stateStore struct {
	d      *data
	faults Faults
}

func (s *stateStore) CreateIfNotExists(_ context.Context, state *domain.MemoryState) (bool, error) {
	if err := state.Validate(); err != nil {
		return false, err
	}
	k := stateKey{state.UserID, state.ContentID}
	if _, ok := s.d.states[k]; ok {
		return false, nil
	}
	s.d.states[k] = state.Clone()
	return true, nil
}

func (s *stateStore) Get(_ context.Context, userID, contentID uuid.UUID) (*domain.MemoryState, error) {
	st, ok := s.d.states[stateKey{userID, contentID}]
	if !ok {
		return nil, store.ErrMemoryStateNotFound
	}
	return st.Clone(), nil
}

func (s *stateStore) GetForUpdate(ctx context.Context, userID, contentID uuid.UUID) (*domain.MemoryState, error) {
	return s.Get(ctx, userID, contentID)
}

func (s *stateStore) Update(_ context.Context, state *domain.MemoryState) error {
	if s.faults.UpdateMemoryState != nil {
		return s.faults.UpdateMemoryState
	}
	if err := state.Validate(); err != nil {
		return err
	}
	k := stateKey{state.UserID, state.ContentID}
	if _, ok := s.d.states[k]; !ok {
		return store.ErrMemoryStateNotFound
	}
	s.d.states[k] = state.Clone()
	return nil
}

func (s *stateStore) WithTx(*sql.Tx) store.MemoryStateStore { return s }

// delivery store

type deliveryStore struct {
	d      *data
	faults Faults
}

func (s *deliveryStore) Create(_ context.Context, d *domain.Delivery) error {
	if s.faults.CreateDelivery != nil {
		return s.faults.CreateDelivery
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if _, ok := s.d.deliveries[d.ID]; ok {
		return store.ErrDuplicate
	}
	if !d.Status.Terminal() {
		for _, other := range s.d.deliveries {
			if other.UserID == d.UserID && other.ContentID == d.ContentID && !other.Status.Terminal() {
				return store.ErrActiveDeliveryExists
			}
		}
	}
	s.d.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *deliveryStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Delivery, error) {
	d, ok := s.d.deliveries[id]
	if !ok {
		return nil, store.ErrDeliveryNotFound
	}
	return d.Clone(), nil
}

func (s *deliveryStore) GetForUpdate(ctx context.Context, id uuid.UUID) (*domain.Delivery, error) {
	return s.GetByID(ctx, id)
}

func (s *deliveryStore) Update(_ context.Context, d *domain.Delivery) error {
	if s.faults.UpdateDelivery != nil {
		return s.faults.UpdateDelivery
	}
	if err := d.Validate(); err != nil {
		return err
	}
	if _, ok := s.d.deliveries[d.ID]; !ok {
		return store.ErrDeliveryNotFound
	}
	s.d.deliveries[d.ID] = d.Clone()
	return nil
}

func (s *deliveryStore) ListActiveForContents(
	_ context.Context,
	userID uuid.UUID,
	contentIDs []uuid.UUID,
) ([]*domain.Delivery, error) {
	wanted := make(map[uuid.UUID]bool, len(contentIDs))
	for _, id := range contentIDs {
		wanted[id] = true
	}
	out := []*domain.Delivery{}
	for _, d := range s.d.deliveries {
		if d.UserID == userID && wanted[d.ContentID] && !d.Status.Terminal() {
			out = append(out, d.Clone())
		}
	}
	sortDeliveries(out, func(d *domain.Delivery) time.Time { return d.CreatedAt })
	return out, nil
}

func (s *deliveryStore) ListDue(_ context.Context, now time.Time, limit int) ([]*domain.Delivery, error) {
	if limit <= 0 {
		limit = 100
	}
	out := []*domain.Delivery{}
	for _, d := range s.d.deliveries {
		if due, ok := d.DueAt(); ok && !due.After(now) {
			out = append(out, d.Clone())
		}
	}
	sortDeliveries(out, func(d *domain.Delivery) time.Time {
		due, _ := d.DueAt()
		return due
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *deliveryStore) WithTx(*sql.Tx) store.DeliveryStore { return s }

// channel store

type channelStore struct {
	d *data
}

func (s *channelStore) ListByUser(_ context.Context, userID uuid.UUID) ([]*domain.Channel, error) {
	out := []*domain.Channel{}
	for _, c := range s.d.channels {
		if c.UserID == userID {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *channelStore) GetByID(_ context.Context, id uuid.UUID) (*domain.Channel, error) {
	c, ok := s.d.channels[id]
	if !ok {
		return nil, store.ErrChannelNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *channelStore) WithTx(*sql.Tx) store.ChannelStore { return s }

// catalog store

type catalogStore struct {
	d *data
}

func (s *catalogStore) GetProduct(_ context.Context, id uuid.UUID) (*domain.Product, error) {
	p, ok := s.d.products[id]
	if !ok {
		return nil, store.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *catalogStore) contentsOf(productID uuid.UUID, activeOnly bool) []*domain.Content {
	out := []*domain.Content{}
	for _, c := range s.d.contents {
		if c.ProductID == productID && (!activeOnly || c.IsActive) {
			cp := *c
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out
}

func (s *catalogStore) ListActiveContents(_ context.Context, productID uuid.UUID) ([]*domain.Content, error) {
	return s.contentsOf(productID, true), nil
}

func (s *catalogStore) ListContentIDs(_ context.Context, productID uuid.UUID) ([]uuid.UUID, error) {
	contents := s.contentsOf(productID, false)
	ids := make([]uuid.UUID, len(contents))
	for i, c := range contents {
		ids[i] = c.ID
	}
	return ids, nil
}

func (s *catalogStore) withContentName(c *domain.Card) *domain.Card {
	cp := *c
	if content, ok := s.d.contents[c.ContentID]; ok {
		cp.ContentName = content.Name
	}
	return &cp
}

func (s *catalogStore) GetCardSequence(_ context.Context, contentID uuid.UUID) (*domain.CardSequence, error) {
	seq := &domain.CardSequence{ContentID: contentID, Cards: []*domain.Card{}}
	for _, row := range s.d.cards {
		if row.card.ContentID == contentID && row.isActive && row.isValid {
			seq.Cards = append(seq.Cards, s.withContentName(row.card))
		}
	}
	sort.Slice(seq.Cards, func(i, j int) bool {
		if seq.Cards[i].DisplayOrder != seq.Cards[j].DisplayOrder {
			return seq.Cards[i].DisplayOrder < seq.Cards[j].DisplayOrder
		}
		return seq.Cards[i].ID.String() < seq.Cards[j].ID.String()
	})
	return seq, nil
}

func (s *catalogStore) GetCard(_ context.Context, id uuid.UUID) (*domain.Card, error) {
	row, ok := s.d.cards[id]
	if !ok {
		return nil, store.ErrCardNotFound
	}
	return s.withContentName(row.card), nil
}

func (s *catalogStore) WithTx(*sql.Tx) store.CatalogStore { return s }

// subscription store

type subscriptionStore struct {
	d *data
}

func (s *subscriptionStore) Upsert(_ context.Context, sub *domain.Subscription) (*domain.Subscription, error) {
	k := stateKey{sub.UserID, sub.ProductID}
	if existing, ok := s.d.subscriptions[k]; ok {
		existing.ChannelID = sub.ChannelID
		existing.Tier = sub.Tier
		existing.DispatchDelay = sub.DispatchDelay
		existing.IsActive = true
		existing.UnsubscribedAt = nil
		existing.UpdatedAt = sub.SubscribedAt
		cp := *existing
		return &cp, nil
	}
	stored := *sub
	stored.IsActive = true
	stored.UnsubscribedAt = nil
	stored.UpdatedAt = sub.SubscribedAt
	s.d.subscriptions[k] = &stored
	cp := stored
	return &cp, nil
}

func (s *subscriptionStore) Get(_ context.Context, userID, productID uuid.UUID) (*domain.Subscription, error) {
	sub, ok := s.d.subscriptions[stateKey{userID, productID}]
	if !ok {
		return nil, store.ErrSubscriptionNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *subscriptionStore) Update(_ context.Context, sub *domain.Subscription) error {
	k := stateKey{sub.UserID, sub.ProductID}
	existing, ok := s.d.subscriptions[k]
	if !ok || existing.ID != sub.ID {
		return store.ErrSubscriptionNotFound
	}
	existing.IsActive = sub.IsActive
	existing.UnsubscribedAt = sub.UnsubscribedAt
	existing.UpdatedAt = sub.UpdatedAt
	return nil
}

func (s *subscriptionStore) WithTx(*sql.Tx) store.SubscriptionStore { return s }

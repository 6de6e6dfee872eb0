package store

import "context"

// Repositories groups the stores bound to one unit of work.
type Repositories struct {
	States        MemoryStateStore
	Deliveries    DeliveryStore
	Channels      ChannelStore
	Catalog       CatalogStore
	Subscriptions SubscriptionStore
}

// UnitOfWorkFn runs against stores that share one transaction.
type UnitOfWorkFn func(ctx context.Context, repos Repositories) error

// UnitOfWork executes a group of store operations atomically.
// Either every write made by fn becomes visible or none does.
type UnitOfWork interface {
	Do(ctx context.Context, fn UnitOfWorkFn) error
}

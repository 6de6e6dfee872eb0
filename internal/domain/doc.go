// Package domain contains the core business entities, value objects, and
// domain logic of the nudge service: per-content memory state, the delivery
// record state machine, delivery channels, card sequences and subscriptions.
// It is independent of any specific infrastructure or delivery mechanism.
package domain

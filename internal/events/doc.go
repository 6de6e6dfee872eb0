// Package events carries notifications about delivery lifecycle changes
// from the services that cause them to whoever wants to observe them.
//
// Events are emitted after the owning transaction has committed, so a handler
// never sees a change that was rolled back. Handlers run synchronously in the
// emitting goroutine and must not block.
//
// The primary components are:
// - Event: a typed notification with a JSON payload
// - EventHandler: interface for components that can handle events
// - EventEmitter: interface for components that can emit events
package events

// Package delivery implements the delivery orchestrator: it turns a feedback
// event into the next memory state and the next queued nudge, and drives the
// delivery state machine from the send results the external worker reports.
//
// Every operation runs in a single store.UnitOfWork so a feedback submission
// either advances the state and queues the next card, or changes nothing.
// Scheduling time is data (ScheduledAt, NextRetryAt); nothing here runs a timer.
package delivery

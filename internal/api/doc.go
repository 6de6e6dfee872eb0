// Package api handles incoming HTTP requests, routing, request validation,
// and response formatting. It adapts the feedback action used by learners
// and the polling surface of the external delivery worker to the delivery
// and subscription services.
package api

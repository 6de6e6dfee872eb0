package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/nudge-api/internal/api"
	"github.com/phrazzld/nudge-api/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.TraceMiddleware(app.logger))

	authMiddleware := middleware.NewAuthMiddleware(app.jwtService)
	deliveryHandler := api.NewDeliveryHandler(app.deliveryService, app.logger)
	subscriptionHandler := api.NewSubscriptionHandler(app.subscriptionService, app.logger)
	workerHandler := api.NewWorkerHandler(app.deliveryService, app.logger)

	r.Route("/api", func(r chi.Router) {
		// Learner routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.With(app.rateLimiter.Middleware).Post("/deliveries/{id}/feedback", deliveryHandler.SubmitFeedback)
			r.Post("/deliveries/{id}/open", deliveryHandler.MarkOpened)

			r.Post("/subscriptions", subscriptionHandler.Subscribe)
			r.Delete("/subscriptions/{productID}", subscriptionHandler.Unsubscribe)
		})

		// Delivery worker routes
		r.Route("/worker", func(r chi.Router) {
			r.Use(middleware.WorkerAuth(app.workerKeyVerifier))

			r.Get("/deliveries/due", workerHandler.ListDue)
			r.Post("/deliveries/{id}/result", workerHandler.RecordResult)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}

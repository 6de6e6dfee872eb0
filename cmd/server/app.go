package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/nudge-api/internal/api/middleware"
	"github.com/phrazzld/nudge-api/internal/config"
	"github.com/phrazzld/nudge-api/internal/domain/backoff"
	"github.com/phrazzld/nudge-api/internal/domain/srs"
	"github.com/phrazzld/nudge-api/internal/events"
	"github.com/phrazzld/nudge-api/internal/platform/postgres"
	"github.com/phrazzld/nudge-api/internal/service/auth"
	"github.com/phrazzld/nudge-api/internal/service/delivery"
	"github.com/phrazzld/nudge-api/internal/service/subscription"
	"github.com/phrazzld/nudge-api/internal/store"
)

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger
	db     *sql.DB

	uow store.UnitOfWork

	jwtService          auth.JWTService
	workerKeyVerifier   auth.KeyVerifier
	srsService          srs.Service
	deliveryService     delivery.Service
	subscriptionService subscription.Service
	rateLimiter         *middleware.RateLimiter

	eventEmitter *events.InMemoryEventEmitter
}

// newApplication wires the services on top of a Postgres unit of work.
func newApplication(cfg *config.Config, logger *slog.Logger, db *sql.DB) (*application, error) {
	app, err := newApplicationWithUnitOfWork(cfg, logger, postgres.NewUnitOfWork(db, logger))
	if err != nil {
		return nil, err
	}
	app.db = db
	return app, nil
}

// newApplicationWithUnitOfWork wires every service on top of uow.
func newApplicationWithUnitOfWork(cfg *config.Config, logger *slog.Logger, uow store.UnitOfWork) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
		uow:    uow,
	}

	var err error
	app.jwtService, err = auth.NewJWTService(cfg.Auth)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	logger.Info("JWT authentication service initialized",
		slog.Int("token_lifetime_minutes", cfg.Auth.TokenLifetimeMinutes))

	app.workerKeyVerifier, err = auth.NewBcryptKeyVerifier(cfg.Worker.APIKeyHash)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize worker key verifier: %w", err)
	}

	app.eventEmitter = events.NewInMemoryEventEmitter(logger)
	app.eventEmitter.RegisterHandler(events.NewLoggingHandler(logger))

	app.srsService, err = srs.NewServiceWithParams(srs.NewParams(srs.ParamsConfig{
		MinEasiness:    cfg.SRS.MinEasiness,
		FirstInterval:  cfg.SRS.FirstIntervalDays,
		SecondInterval: cfg.SRS.SecondIntervalDays,
		LapseInterval:  cfg.SRS.LapseIntervalDays,
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to create SRS service: %w", err)
	}

	policy := backoff.Policy{
		Base:       cfg.Delivery.RetryBase(),
		MaxBackoff: cfg.Delivery.RetryMaxBackoff(),
		MaxRetries: cfg.Delivery.MaxRetries,
	}
	app.deliveryService, err = delivery.NewService(uow, app.srsService, policy, logger,
		delivery.WithEmitter(app.eventEmitter))
	if err != nil {
		return nil, fmt.Errorf("failed to create delivery service: %w", err)
	}

	app.subscriptionService, err = subscription.NewService(uow,
		subscription.DelaysFromConfig(cfg.Subscription), logger,
		subscription.WithEmitter(app.eventEmitter))
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription service: %w", err)
	}

	app.rateLimiter = middleware.NewRateLimiter(cfg.Server.RateLimitPerMinute)

	logger.Info("application initialized successfully")
	return app, nil
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (app *application) Run(ctx context.Context) error {
	router := app.setupRouter()

	if err := app.startHTTPServer(ctx, router); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database connection", slog.String("error", err.Error()))
		}
	}

	app.logger.Info("application shutdown completed")
}

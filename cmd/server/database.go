package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/phrazzld/nudge-api/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// setupAppDatabase opens the connection pool and verifies it with a ping.
func setupAppDatabase(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		slog.String("url", maskDatabaseURL(cfg.Database.URL)),
		slog.Int("max_open_conns", cfg.Database.MaxOpenConns))
	return db, nil
}

// maskDatabaseURL masks the password in a database URL for safe logging.
func maskDatabaseURL(dbURL string) string {
	parsedURL, err := url.Parse(dbURL)
	if err != nil {
		return "invalid-url"
	}

	if parsedURL.User != nil {
		if _, hasPassword := parsedURL.User.Password(); hasPassword {
			parsedURL.User = url.UserPassword(parsedURL.User.Username(), "****")
		}
		return parsedURL.String()
	}

	return dbURL
}

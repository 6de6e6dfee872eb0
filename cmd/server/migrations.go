package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/phrazzld/nudge-api/internal/platform/postgres"
	"github.com/pressly/goose/v3"
)

// Supported migrate subcommands.
const (
	migrateUp      = "up"
	migrateDown    = "down"
	migrateStatus  = "status"
	migrateVersion = "version"
)

// slogGooseLogger adapts goose's logger to slog.
type slogGooseLogger struct {
	logger *slog.Logger
}

// Printf implements the goose.Logger Printf method by forwarding messages to slog.Info
func (l *slogGooseLogger) Printf(format string, v ...interface{}) {
	l.logger.Info(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Fatalf implements the goose.Logger Fatalf method by forwarding error messages to slog.Error.
// Unlike the standard Fatalf it does not exit; the error reaches main through the command.
func (l *slogGooseLogger) Fatalf(format string, v ...interface{}) {
	l.logger.Error(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// runMigrations applies command to the schema using the migrations embedded
// in the postgres package.
func runMigrations(ctx context.Context, db *sql.DB, command string, logger *slog.Logger) error {
	log := logger.With(slog.String("component", "migrations"), slog.String("command", command))

	goose.SetBaseFS(postgres.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(&slogGooseLogger{logger: log})

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}

	start := time.Now()
	var err error
	switch command {
	case migrateUp:
		err = goose.UpContext(ctx, db, postgres.MigrationsDir)
	case migrateDown:
		err = goose.DownContext(ctx, db, postgres.MigrationsDir)
	case migrateStatus:
		err = goose.StatusContext(ctx, db, postgres.MigrationsDir)
	case migrateVersion:
		var version int64
		version, err = goose.GetDBVersionContext(ctx, db)
		if err == nil {
			log.Info("current schema version", slog.Int64("version", version))
		}
	default:
		return fmt.Errorf("unknown migration command %q", command)
	}
	if err != nil {
		log.Error("migration failed", slog.String("error", err.Error()))
		return fmt.Errorf("migration %s failed: %w", command, err)
	}

	log.Info("migration completed", slog.Int64("duration_ms", time.Since(start).Milliseconds()))
	return nil
}

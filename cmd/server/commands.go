package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/phrazzld/nudge-api/internal/config"
	"github.com/phrazzld/nudge-api/internal/platform/logger"
	"github.com/phrazzld/nudge-api/internal/service/auth"
	"github.com/spf13/cobra"
)

// cliOptions are the flags shared by every subcommand.
type cliOptions struct {
	configFile string
	envFile    string
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	root := &cobra.Command{
		Use:          "nudge-api",
		Short:        "Spaced-repetition nudge delivery API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configFile, "config", "", "path to a YAML config file (default ./config.yaml)")
	root.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "path to a dotenv file (default ./.env)")

	root.AddCommand(newServeCommand(opts), newMigrateCommand(opts), newTokenCommand(opts))
	return root
}

func newServeCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, log, err := loadAppConfig(opts)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			db, err := setupAppDatabase(ctx, cfg, log)
			if err != nil {
				return err
			}

			app, err := newApplication(cfg, log, db)
			if err != nil {
				_ = db.Close()
				return err
			}
			return app.Run(ctx)
		},
	}
}

func newMigrateCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	for _, sub := range []struct {
		name  string
		short string
	}{
		{name: migrateUp, short: "Apply all pending migrations"},
		{name: migrateDown, short: "Roll back the most recent migration"},
		{name: migrateStatus, short: "Print the status of every migration"},
		{name: migrateVersion, short: "Print the current schema version"},
	} {
		command := sub.name
		cmd.AddCommand(&cobra.Command{
			Use:   command,
			Short: sub.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				cfg, log, err := loadAppConfig(opts)
				if err != nil {
					return err
				}
				db, err := setupAppDatabase(cmd.Context(), cfg, log)
				if err != nil {
					return err
				}
				defer func() {
					if err := db.Close(); err != nil {
						log.Error("error closing database connection", slog.String("error", err.Error()))
					}
				}()
				return runMigrations(cmd.Context(), db, command, log)
			},
		})
	}
	return cmd
}

// newTokenCommand issues an access token for a user, signed with the
// configured secret. Identity is owned by another system; this is for
// operators and local development.
func newTokenCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "token <user-id>",
		Short: "Print a signed access token for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadAppConfig(opts)
			if err != nil {
				return err
			}
			return issueToken(cmd.Context(), cfg.Auth, args[0], cmd.OutOrStdout())
		},
	}
}

func issueToken(ctx context.Context, cfg config.AuthConfig, rawUserID string, out io.Writer) error {
	userID, err := uuid.Parse(rawUserID)
	if err != nil || userID == uuid.Nil {
		return fmt.Errorf("invalid user id %q", rawUserID)
	}

	jwtService, err := auth.NewJWTService(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize JWT service: %w", err)
	}
	token, err := jwtService.GenerateToken(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to generate token: %w", err)
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

// loadAppConfig loads and validates configuration, then sets up the logger
// at the configured level.
func loadAppConfig(opts *cliOptions) (*config.Config, *slog.Logger, error) {
	cfg, err := config.LoadWithOptions(config.Options{
		ConfigFile: opts.configFile,
		EnvFile:    opts.envFile,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.Setup(cfg.Server)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up logger: %w", err)
	}

	log.Info("configuration loaded",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Server.LogLevel))
	return cfg, log, nil
}

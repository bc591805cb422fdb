package main

import (
	"context"
	"fmt"

	"github.com/desertthunder/acura/internal/repositories"
	"github.com/desertthunder/acura/internal/shared"
	"github.com/urfave/cli/v3"
)

// SetupConfig writes the default config template to --config.
func (r *Runner) SetupConfig(ctx context.Context, cmd *cli.Command) error {
	if err := shared.CreateConfigFile(r.configPath); err != nil {
		return err
	}
	r.logger.Info("config file created", "path", r.configPath)
	return r.writePlain("✓ Config written to %s\nAdd your Spotify, Brave and OpenAI credentials, or set them in the environment.\n", r.configPath)
}

// SetupDatabase creates the schema for the configured driver.
func (r *Runner) SetupDatabase(ctx context.Context, cmd *cli.Command) error {
	if err := r.config.Validate(); err != nil {
		return err
	}

	switch r.config.Database.Driver {
	case "postgres":
		r.logger.Info("initializing postgres schema")
		pool, err := shared.NewPool(ctx, r.config.Database.URL, r.config.Database.MaxOpenConns)
		if err != nil {
			return err
		}
		store := repositories.NewPostgresStore(pool)
		defer store.Close()

		if err := store.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
		return r.writePlain("✓ PostgreSQL schema ready\n")
	default:
		r.logger.Info("initializing database", "path", r.config.Database.Path)
		db, err := shared.NewDatabase(r.config.Database.Path)
		if err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		defer db.Close()

		shared.ConfigureDatabase(db, r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

		r.logger.Info("running database migrations")
		if err := shared.RunMigrations(ctx, db); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		return r.writePlain("✓ SQLite database ready: %s\n", r.config.Database.Path)
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/migrate"
)

// NewMigrateCmd creates the migrate subcommand.
func NewMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		Long:  `Run all pending schema migrations against the PostgreSQL database.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runMigrate(cmd, nil)
		},
	}
}

func runMigrate(cmd *cobra.Command, deps *Deps) error {
	if deps == nil {
		deps = &Deps{}
	}
	deps.defaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx := cmd.Context()

	cmd.Println("Connecting to database...")
	pool, err := connect(ctx, deps, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	migrator, err := migrate.NewMigrator(pool, nil)
	if err != nil {
		return err
	}

	cmd.Println("Running migrations...")
	applied, err := migrator.Apply(ctx, migrate.Steps())
	if err != nil {
		return oops.Code("MIGRATION_FAILED").
			With("operation", "run migrations").
			Wrap(err)
	}

	cmd.Printf("Migrations completed successfully (%d applied)\n", applied)
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/migrate"
)

// NewStatusCmd creates the status subcommand.
func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show schema and migration status",
		Long:  `Show whether the schema is deployed and which migrations are pending.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, nil)
		},
	}
}

func runStatus(cmd *cobra.Command, deps *Deps) error {
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

	pool, err := connect(ctx, deps, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	inspector := migrate.NewSchemaInspector(pool, nil)
	if inspector.CheckSchemaReady(ctx) {
		cmd.Println("Schema: ready")
	} else {
		cmd.Println("Schema: not ready")
	}

	hasTable, err := inspector.TableExists(ctx, "migrations")
	if err != nil {
		return err
	}

	steps := migrate.Steps()
	pending := make([]string, 0, len(steps))
	if hasTable {
		migrator, merr := migrate.NewMigrator(pool, nil)
		if merr != nil {
			return merr
		}
		pending, err = migrator.Pending(ctx, steps)
		if err != nil {
			return err
		}
	} else {
		// No bookkeeping table yet means nothing has ever been applied.
		for _, step := range steps {
			pending = append(pending, step.Name)
		}
	}
	if len(pending) == 0 {
		cmd.Println("Migrations: up to date")
		return nil
	}

	cmd.Printf("Migrations: %d pending\n", len(pending))
	for _, name := range pending {
		cmd.Printf("  - %s\n", name)
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/logging"
	"github.com/keyfold/keyfold/internal/store"
)

// Pool is the connection pool surface the subcommands need. Satisfied by
// *pgxpool.Pool in production and pgxmock pools in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PoolOpener opens a database connection pool. Injectable for tests.
type PoolOpener func(ctx context.Context, databaseURL string) (Pool, error)

// Deps holds injectable dependencies for subcommands.
// A nil field means the production implementation is used.
type Deps struct {
	OpenPool PoolOpener
}

func (d *Deps) defaults() {
	if d.OpenPool == nil {
		d.OpenPool = func(ctx context.Context, databaseURL string) (Pool, error) {
			return store.Open(ctx, databaseURL)
		}
	}
}

// loadConfig resolves the runtime configuration from defaults, the
// optional --config file, the command's flags, and DATABASE_URL from the
// environment.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	return config.Load(configFile, cmd.Flags())
}

// setupLogging installs the default structured logger.
func setupLogging(cfg config.Config) {
	logging.SetDefault("keyfold", version, cfg.LogFormat, logLevel)
}

// connect opens the pool with a wrapped error for CLI surfacing.
func connect(ctx context.Context, deps *Deps, databaseURL string) (Pool, error) {
	pool, err := deps.OpenPool(ctx, databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").
			With("operation", "connect to database").
			Wrap(err)
	}
	return pool, nil
}

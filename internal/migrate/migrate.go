// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package migrate applies named, ordered schema changes exactly once.
//
// Applied step names are recorded in the migrations table; the unique
// constraint on the name is what arbitrates between concurrent writers.
// A step's work and the recording of its name commit in one transaction,
// so a crash between them can never mark unexecuted work as done.
package migrate

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Pool abstracts the subset of *pgxpool.Pool the migrator uses.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// NamedStep is one schema change. Names must be unique across the whole
// migration history; once recorded, a name never re-runs.
type NamedStep struct {
	Name string
	Run  func(ctx context.Context, tx pgx.Tx) error
}

// SQLStep builds a NamedStep that executes a single SQL statement.
func SQLStep(name, sql string) NamedStep {
	return NamedStep{
		Name: name,
		Run: func(ctx context.Context, tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, sql); err != nil {
				return oops.Code("MIGRATION_STEP_FAILED").
					With("migration", name).
					Wrap(err)
			}
			return nil
		},
	}
}

// Migrator applies named schema steps against PostgreSQL.
type Migrator struct {
	pool   Pool
	logger *slog.Logger
}

// NewMigrator creates a Migrator.
func NewMigrator(pool Pool, logger *slog.Logger) (*Migrator, error) {
	if pool == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("pool is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{pool: pool, logger: logger}, nil
}

// ensureMigrationsTable is the self-check migration: it creates the
// bookkeeping table itself and is safe to invoke when the table already
// exists.
const ensureMigrationsTable = `
CREATE TABLE IF NOT EXISTS migrations (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	executed_at TIMESTAMPTZ NOT NULL
)`

// Apply runs every pending step from the declared list, in declaration
// order, recording each name as it succeeds. It returns the number of
// steps it ran. The first failing step stops the run and surfaces its
// error; later steps stay pending. A concurrent Apply that records a
// name first wins; the loser's transaction rolls back and the step is
// skipped as already applied.
func (m *Migrator) Apply(ctx context.Context, steps []NamedStep) (int, error) {
	if _, err := m.pool.Exec(ctx, ensureMigrationsTable); err != nil {
		return 0, oops.Code("STORE_UNAVAILABLE").
			With("operation", "ensure migrations table").
			Wrap(err)
	}

	applied, err := m.appliedNames(ctx)
	if err != nil {
		return 0, err
	}

	pending := make([]NamedStep, 0, len(steps))
	for _, step := range steps {
		if _, done := applied[step.Name]; !done {
			pending = append(pending, step)
		}
	}
	if len(pending) == 0 {
		m.logger.Debug("no pending migrations", "declared", len(steps))
		return 0, nil
	}

	for i, step := range pending {
		if err := m.applyOne(ctx, step); err != nil {
			return i, err
		}
	}

	m.logger.Info("migrations applied", "count", len(pending))
	return len(pending), nil
}

// applyOne runs a single step and records its name in one transaction.
func (m *Migrator) applyOne(ctx context.Context, step NamedStep) error {
	start := time.Now()

	tx, err := m.pool.Begin(ctx)
	if err != nil {
		return oops.Code("STORE_UNAVAILABLE").
			With("operation", "begin migration transaction").
			With("migration", step.Name).
			Wrap(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if err := step.Run(ctx, tx); err != nil {
		return oops.Code("MIGRATION_FAILED").
			With("migration", step.Name).
			Wrap(err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO migrations (id, name, executed_at) VALUES ($1, $2, $3)
	`, ulid.Make().String(), step.Name, time.Now())
	if err != nil {
		if isUniqueViolation(err) {
			// Another process recorded this name first. Rolling back
			// undoes our copy of the work; theirs stands.
			m.logger.Warn("migration already applied by another process",
				"migration", step.Name)
			return nil
		}
		return oops.Code("MIGRATION_RECORD_FAILED").
			With("migration", step.Name).
			Wrap(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return oops.Code("MIGRATION_COMMIT_FAILED").
			With("migration", step.Name).
			Wrap(err)
	}

	m.logger.Info("migration applied",
		"migration", step.Name,
		"duration", time.Since(start))
	return nil
}

// Pending returns the names from steps that have not been recorded yet,
// preserving declaration order.
func (m *Migrator) Pending(ctx context.Context, steps []NamedStep) ([]string, error) {
	applied, err := m.appliedNames(ctx)
	if err != nil {
		return nil, err
	}
	var pending []string
	for _, step := range steps {
		if _, done := applied[step.Name]; !done {
			pending = append(pending, step.Name)
		}
	}
	return pending, nil
}

// appliedNames reads the set of recorded migration names.
func (m *Migrator) appliedNames(ctx context.Context) (map[string]struct{}, error) {
	rows, err := m.pool.Query(ctx, `SELECT name FROM migrations`)
	if err != nil {
		return nil, oops.Code("STORE_UNAVAILABLE").
			With("operation", "read applied migrations").
			Wrap(err)
	}
	defer rows.Close()

	applied := make(map[string]struct{})
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, oops.Code("MIGRATION_SCAN_FAILED").Wrap(err)
		}
		applied[name] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("MIGRATION_ROWS_ERROR").Wrap(err)
	}
	return applied, nil
}

// isUniqueViolation reports whether err is a unique-constraint violation.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation
}

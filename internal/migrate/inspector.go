// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package migrate

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// SchemaInspector answers questions about the deployed schema without
// executing domain queries. A connectivity failure is an error here, not
// an "absent" answer.
type SchemaInspector struct {
	pool   Pool
	logger *slog.Logger
}

// NewSchemaInspector creates a SchemaInspector.
func NewSchemaInspector(pool Pool, logger *slog.Logger) *SchemaInspector {
	if logger == nil {
		logger = slog.Default()
	}
	return &SchemaInspector{pool: pool, logger: logger}
}

// TableExists reports whether a table is present in the current schema.
func (i *SchemaInspector) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := i.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM information_schema.tables
			WHERE table_schema = current_schema() AND table_name = $1
		)
	`, name).Scan(&exists)
	if err != nil {
		return false, oops.Code("STORE_UNAVAILABLE").
			With("operation", "inspect table").
			With("table", name).
			Wrap(err)
	}
	return exists, nil
}

// CheckSchemaReady reports whether the identity schema is fully deployed.
// Used by startup health checks; errors degrade to false and are logged
// rather than surfaced.
func (i *SchemaInspector) CheckSchemaReady(ctx context.Context) bool {
	for _, table := range []string{"migrations", "principals", "session_tokens", "password_resets"} {
		exists, err := i.TableExists(ctx, table)
		if err != nil {
			i.logger.Warn("schema readiness probe failed",
				"table", table,
				"error", err)
			return false
		}
		if !exists {
			return false
		}
	}
	return true
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/migrate"
)

func TestRunStatus_SchemaReadyAndUpToDate(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/keyfold")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	// Readiness probe checks each table, then status re-checks migrations.
	for range 5 {
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(pgxmock.AnyArg()).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	}

	rows := pgxmock.NewRows([]string{"name"})
	for _, step := range migrate.Steps() {
		rows.AddRow(step.Name)
	}
	mock.ExpectQuery("SELECT name FROM migrations").WillReturnRows(rows)
	mock.ExpectClose()

	cmd := NewRootCmd()
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	deps := &Deps{
		OpenPool: func(_ context.Context, _ string) (Pool, error) {
			return mock, nil
		},
	}

	err = runStatus(cmd, deps)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Schema: ready")
	assert.Contains(t, out.String(), "Migrations: up to date")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunStatus_FreshDatabaseListsAllPending(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/keyfold")

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)

	// Readiness probe fails on the first missing table, then the
	// migrations-table check also reports absent.
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectClose()

	cmd := NewRootCmd()
	cmd.SetContext(context.Background())
	var out bytes.Buffer
	cmd.SetOut(&out)

	deps := &Deps{
		OpenPool: func(_ context.Context, _ string) (Pool, error) {
			return mock, nil
		},
	}

	err = runStatus(cmd, deps)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Schema: not ready")
	assert.Contains(t, out.String(), "001_create_principals")
	assert.Contains(t, out.String(), "007_password_resets_email_idx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/keyfold/keyfold/internal/identity"
)

// PasswordResetRepository implements identity.PasswordResetRepository using PostgreSQL.
type PasswordResetRepository struct {
	pool Pool
}

// NewPasswordResetRepository creates a new PasswordResetRepository.
func NewPasswordResetRepository(pool Pool) *PasswordResetRepository {
	return &PasswordResetRepository{pool: pool}
}

// Create stores a new reset record.
func (r *PasswordResetRepository) Create(ctx context.Context, record *identity.PasswordResetRecord) error {
	_, err := queryTarget(ctx, r.pool).Exec(ctx, `
		INSERT INTO password_resets (id, email, token_hash, created_at)
		VALUES ($1, $2, $3, $4)
	`, record.ID.String(), record.Email, record.TokenHash, record.CreatedAt)
	if err != nil {
		return oops.Code("RESET_CREATE_FAILED").
			With("operation", "insert password_reset").
			Wrap(err)
	}
	return nil
}

// GetByEmail retrieves all reset records for an email, newest first.
func (r *PasswordResetRepository) GetByEmail(ctx context.Context, email string) ([]*identity.PasswordResetRecord, error) {
	rows, err := queryTarget(ctx, r.pool).Query(ctx, `
		SELECT id, email, token_hash, created_at
		FROM password_resets
		WHERE LOWER(email) = LOWER($1)
		ORDER BY created_at DESC
	`, email)
	if err != nil {
		return nil, oops.Code("RESET_GET_BY_EMAIL_FAILED").
			With("operation", "get password_resets by email").
			Wrap(err)
	}
	defer rows.Close()

	var records []*identity.PasswordResetRecord
	for rows.Next() {
		record, err := scanResetRecord(rows)
		if err != nil {
			return nil, oops.Code("RESET_SCAN_FAILED").
				With("operation", "scan password_reset row").
				Wrap(err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("RESET_ROWS_ERROR").
			With("operation", "iterate password_reset rows").
			Wrap(err)
	}

	return records, nil
}

// Delete removes a single reset record.
func (r *PasswordResetRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_resets WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("RESET_DELETE_FAILED").
			With("operation", "delete password_reset").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("RESET_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// DeleteByEmail removes all reset records for an email and returns the
// count of deleted records.
func (r *PasswordResetRepository) DeleteByEmail(ctx context.Context, email string) (int64, error) {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_resets WHERE LOWER(email) = LOWER($1)
	`, email)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_BY_EMAIL_FAILED").
			With("operation", "delete password_resets by email").
			Wrap(err)
	}
	// No ErrNotFound if no rows deleted - that's a valid state.
	return result.RowsAffected(), nil
}

// DeleteOlderThan removes all records created before the cutoff and
// returns the count.
func (r *PasswordResetRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM password_resets WHERE created_at < $1
	`, cutoff)
	if err != nil {
		return 0, oops.Code("RESET_DELETE_EXPIRED_FAILED").
			With("operation", "delete old password_resets").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanResetRecord scans a row into a PasswordResetRecord.
func scanResetRecord(row pgx.Row) (*identity.PasswordResetRecord, error) {
	var (
		idStr     string
		email     string
		tokenHash string
		createdAt time.Time
	)

	err := row.Scan(&idStr, &email, &tokenHash, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("RESET_SCAN_FAILED").
			With("operation", "scan password_reset").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("RESET_INVALID_ID").
			With("operation", "parse reset id").
			With("id", idStr).
			Wrap(err)
	}

	return &identity.PasswordResetRecord{
		ID:        id,
		Email:     email,
		TokenHash: tokenHash,
		CreatedAt: createdAt,
	}, nil
}

// Compile-time interface check.
var _ identity.PasswordResetRepository = (*PasswordResetRepository)(nil)

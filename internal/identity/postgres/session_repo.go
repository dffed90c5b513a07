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

const sessionColumns = `id, principal_id, label, token, last_used_at,
	       expires_at, created_at, updated_at`

// SessionTokenRepository implements identity.SessionTokenRepository using PostgreSQL.
type SessionTokenRepository struct {
	pool Pool
}

// NewSessionTokenRepository creates a new SessionTokenRepository.
func NewSessionTokenRepository(pool Pool) *SessionTokenRepository {
	return &SessionTokenRepository{pool: pool}
}

// Create stores a new session token.
func (r *SessionTokenRepository) Create(ctx context.Context, token *identity.SessionToken) error {
	_, err := queryTarget(ctx, r.pool).Exec(ctx, `
		INSERT INTO session_tokens (id, principal_id, label, token, last_used_at, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		token.ID.String(),
		token.PrincipalID.String(),
		token.Label,
		token.Token,
		token.LastUsedAt,
		token.ExpiresAt,
		token.CreatedAt,
		token.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			// Collision backstop: 64 random bytes should never repeat.
			return oops.Code("CONFLICT_SESSION_TOKEN").
				With("principal_id", token.PrincipalID.String()).
				Wrap(identity.ErrConflict)
		}
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "insert session_token").
			With("principal_id", token.PrincipalID.String()).
			Wrap(err)
	}
	return nil
}

// GetByToken retrieves a session token by its opaque value.
func (r *SessionTokenRepository) GetByToken(ctx context.Context, token string) (*identity.SessionToken, error) {
	row := queryTarget(ctx, r.pool).QueryRow(ctx, `
		SELECT `+sessionColumns+`
		FROM session_tokens
		WHERE token = $1
	`, token)

	session, err := scanSessionToken(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session_token by value").
			Wrap(err)
	}
	return session, nil
}

// GetByPrincipal retrieves all tokens for a principal, newest first.
func (r *SessionTokenRepository) GetByPrincipal(ctx context.Context, principalID ulid.ULID) ([]*identity.SessionToken, error) {
	rows, err := queryTarget(ctx, r.pool).Query(ctx, `
		SELECT `+sessionColumns+`
		FROM session_tokens
		WHERE principal_id = $1
		ORDER BY created_at DESC
	`, principalID.String())
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_PRINCIPAL_FAILED").
			With("operation", "get session_tokens by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	defer rows.Close()

	var sessions []*identity.SessionToken
	for rows.Next() {
		session, err := scanSessionToken(rows)
		if err != nil {
			return nil, oops.Code("SESSION_SCAN_FAILED").
				With("operation", "scan session_token row").
				Wrap(err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, oops.Code("SESSION_ROWS_ERROR").
			With("operation", "iterate session_token rows").
			Wrap(err)
	}

	return sessions, nil
}

// UpdateLastUsed updates the LastUsedAt timestamp for a token.
func (r *SessionTokenRepository) UpdateLastUsed(ctx context.Context, id ulid.ULID, lastUsed time.Time) error {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		UPDATE session_tokens SET last_used_at = $2, updated_at = $2
		WHERE id = $1
	`, id.String(), lastUsed)
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_USED_FAILED").
			With("operation", "update last_used_at").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// DeleteByToken removes a token by its opaque value. Deleting zero rows
// is a valid outcome, not an error.
func (r *SessionTokenRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM session_tokens WHERE token = $1
	`, token)
	if err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session_token").
			Wrap(err)
	}
	return nil
}

// DeleteByPrincipal removes all tokens for a principal.
func (r *SessionTokenRepository) DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error {
	_, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM session_tokens WHERE principal_id = $1
	`, principalID.String())
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_PRINCIPAL_FAILED").
			With("operation", "delete session_tokens by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired removes all tokens past their expiry and returns the count.
// Tokens without an expiry are untouched.
func (r *SessionTokenRepository) DeleteExpired(ctx context.Context, at time.Time) (int64, error) {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM session_tokens WHERE expires_at IS NOT NULL AND expires_at < $1
	`, at)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_EXPIRED_FAILED").
			With("operation", "delete expired session_tokens").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// DeleteWithoutExpiry removes all tokens issued with no expiry and
// returns the count.
func (r *SessionTokenRepository) DeleteWithoutExpiry(ctx context.Context) (int64, error) {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM session_tokens WHERE expires_at IS NULL
	`)
	if err != nil {
		return 0, oops.Code("SESSION_DELETE_NO_EXPIRY_FAILED").
			With("operation", "delete session_tokens without expiry").
			Wrap(err)
	}
	return result.RowsAffected(), nil
}

// scanSessionToken scans a row into a SessionToken.
// Callers are responsible for handling pgx.ErrNoRows.
func scanSessionToken(row pgx.Row) (*identity.SessionToken, error) {
	var (
		idStr          string
		principalIDStr string
		label          string
		token          string
		lastUsedAt     *time.Time
		expiresAt      *time.Time
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(&idStr, &principalIDStr, &label, &token, &lastUsedAt, &expiresAt, &createdAt, &updatedAt)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("SESSION_SCAN_FAILED").
			With("operation", "scan session_token").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_ID").
			With("operation", "parse session id").
			With("id", idStr).
			Wrap(err)
	}

	principalID, err := ulid.Parse(principalIDStr)
	if err != nil {
		return nil, oops.Code("SESSION_INVALID_PRINCIPAL_ID").
			With("operation", "parse principal id").
			With("principal_id", principalIDStr).
			Wrap(err)
	}

	return &identity.SessionToken{
		ID:          id,
		PrincipalID: principalID,
		Label:       label,
		Token:       token,
		LastUsedAt:  lastUsedAt,
		ExpiresAt:   expiresAt,
		CreatedAt:   createdAt,
		UpdatedAt:   updatedAt,
	}, nil
}

// Compile-time interface check.
var _ identity.SessionTokenRepository = (*SessionTokenRepository)(nil)

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

const principalColumns = `id, email, name, password_hash, role, active,
	       external_id, avatar_url, failed_attempts, locked_until,
	       created_at, updated_at`

// PrincipalRepository implements identity.PrincipalRepository using PostgreSQL.
type PrincipalRepository struct {
	pool Pool
}

// NewPrincipalRepository creates a new PrincipalRepository.
func NewPrincipalRepository(pool Pool) *PrincipalRepository {
	return &PrincipalRepository{pool: pool}
}

// Create stores a new principal.
func (r *PrincipalRepository) Create(ctx context.Context, principal *identity.Principal) error {
	_, err := queryTarget(ctx, r.pool).Exec(ctx, `
		INSERT INTO principals (
			id, email, name, password_hash, role, active,
			external_id, avatar_url, failed_attempts, locked_until,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		principal.ID.String(),
		principal.Email,
		principal.DisplayName,
		principal.PasswordHash,
		principal.Role,
		principal.Active,
		principal.ExternalID,
		principal.AvatarURL,
		principal.FailedAttempts,
		principal.LockedUntil,
		principal.CreatedAt,
		principal.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("CONFLICT_PRINCIPAL").
				With("email", principal.Email).
				Wrap(identity.ErrConflict)
		}
		return oops.Code("PRINCIPAL_CREATE_FAILED").
			With("operation", "insert principal").
			With("email", principal.Email).
			Wrap(err)
	}
	return nil
}

// GetByID retrieves a principal by ID.
func (r *PrincipalRepository) GetByID(ctx context.Context, id ulid.ULID) (*identity.Principal, error) {
	row := queryTarget(ctx, r.pool).QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE id = $1
	`, id.String())

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_ID_FAILED").
			With("operation", "get principal by id").
			With("id", id.String()).
			Wrap(err)
	}
	return principal, nil
}

// GetByEmail retrieves a principal by email (case-insensitive).
func (r *PrincipalRepository) GetByEmail(ctx context.Context, email string) (*identity.Principal, error) {
	row := queryTarget(ctx, r.pool).QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE LOWER(email) = LOWER($1)
	`, email)

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_EMAIL_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}
	return principal, nil
}

// GetByExternalID retrieves a principal by its linked external identity.
func (r *PrincipalRepository) GetByExternalID(ctx context.Context, externalID string) (*identity.Principal, error) {
	row := queryTarget(ctx, r.pool).QueryRow(ctx, `
		SELECT `+principalColumns+`
		FROM principals
		WHERE external_id = $1
	`, externalID)

	principal, err := scanPrincipal(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oops.Code("PRINCIPAL_NOT_FOUND").
			With("external_id", externalID).
			Wrap(identity.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("PRINCIPAL_GET_BY_EXTERNAL_ID_FAILED").
			With("operation", "get principal by external id").
			With("external_id", externalID).
			Wrap(err)
	}
	return principal, nil
}

// Update updates an existing principal.
func (r *PrincipalRepository) Update(ctx context.Context, principal *identity.Principal) error {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		UPDATE principals SET
			email = $2,
			name = $3,
			password_hash = $4,
			role = $5,
			active = $6,
			external_id = $7,
			avatar_url = $8,
			failed_attempts = $9,
			locked_until = $10,
			updated_at = $11
		WHERE id = $1
	`,
		principal.ID.String(),
		principal.Email,
		principal.DisplayName,
		principal.PasswordHash,
		principal.Role,
		principal.Active,
		principal.ExternalID,
		principal.AvatarURL,
		principal.FailedAttempts,
		principal.LockedUntil,
		principal.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return oops.Code("CONFLICT_PRINCIPAL").
				With("id", principal.ID.String()).
				Wrap(identity.ErrConflict)
		}
		return oops.Code("PRINCIPAL_UPDATE_FAILED").
			With("operation", "update principal").
			With("id", principal.ID.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", principal.ID.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// UpdatePassword updates only the password hash for a principal.
func (r *PrincipalRepository) UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		UPDATE principals SET password_hash = $2, updated_at = $3
		WHERE id = $1
	`, id.String(), passwordHash, time.Now())
	if err != nil {
		return oops.Code("PRINCIPAL_UPDATE_PASSWORD_FAILED").
			With("operation", "update password").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// Delete physically removes a principal.
func (r *PrincipalRepository) Delete(ctx context.Context, id ulid.ULID) error {
	result, err := queryTarget(ctx, r.pool).Exec(ctx, `
		DELETE FROM principals WHERE id = $1
	`, id.String())
	if err != nil {
		return oops.Code("PRINCIPAL_DELETE_FAILED").
			With("operation", "delete principal").
			With("id", id.String()).
			Wrap(err)
	}
	if result.RowsAffected() == 0 {
		return oops.Code("PRINCIPAL_NOT_FOUND").
			With("id", id.String()).
			Wrap(identity.ErrNotFound)
	}
	return nil
}

// scanPrincipal scans a single row into a Principal.
// Callers are responsible for handling pgx.ErrNoRows.
func scanPrincipal(row pgx.Row) (*identity.Principal, error) {
	var (
		idStr          string
		email          string
		name           string
		passwordHash   string
		role           string
		active         bool
		externalID     *string
		avatarURL      *string
		failedAttempts int
		lockedUntil    *time.Time
		createdAt      time.Time
		updatedAt      time.Time
	)

	err := row.Scan(
		&idStr,
		&email,
		&name,
		&passwordHash,
		&role,
		&active,
		&externalID,
		&avatarURL,
		&failedAttempts,
		&lockedUntil,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		// Propagate pgx.ErrNoRows unchanged for callers to handle with context.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err //nolint:wrapcheck // Callers wrap with context-specific info
		}
		return nil, oops.Code("PRINCIPAL_SCAN_FAILED").
			With("operation", "scan principal").
			Wrap(err)
	}

	id, err := ulid.Parse(idStr)
	if err != nil {
		return nil, oops.Code("PRINCIPAL_INVALID_ID").
			With("operation", "parse principal id").
			With("id", idStr).
			Wrap(err)
	}

	return &identity.Principal{
		ID:             id,
		Email:          email,
		DisplayName:    name,
		PasswordHash:   passwordHash,
		Role:           role,
		Active:         active,
		ExternalID:     externalID,
		AvatarURL:      avatarURL,
		FailedAttempts: failedAttempts,
		LockedUntil:    lockedUntil,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

// Compile-time interface check.
var _ identity.PrincipalRepository = (*PrincipalRepository)(nil)

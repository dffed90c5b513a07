// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// RoleUser is the default role assigned to new principals.
const RoleUser = "user"

// Display name constraints.
const (
	MaxDisplayNameLength = 100
	MaxEmailLength       = 254
)

// emailRegex is a pragmatic shape check, not an RFC 5322 validator.
// Deliverability is proven by the reset flow, not by parsing.
var emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Principal represents an authenticated account.
type Principal struct {
	ID             ulid.ULID
	Email          string
	DisplayName    string
	PasswordHash   string
	Role           string
	Active         bool
	ExternalID     *string
	AvatarURL      *string
	FailedAttempts int
	LockedUntil    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NewPrincipal creates a validated Principal with the default role and
// active flag. The password hash must already be computed by the hasher.
func NewPrincipal(email, displayName, passwordHash string) (*Principal, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if passwordHash == "" {
		return nil, oops.Code("VALIDATION_PASSWORD_HASH_EMPTY").Errorf("password hash cannot be empty")
	}
	if len(displayName) > MaxDisplayNameLength {
		return nil, oops.Code("VALIDATION_NAME_TOO_LONG").
			With("max", MaxDisplayNameLength).
			Errorf("display name must be at most %d characters", MaxDisplayNameLength)
	}

	now := time.Now()
	return &Principal{
		ID:           ulid.Make(),
		Email:        email,
		DisplayName:  displayName,
		PasswordHash: passwordHash,
		Role:         RoleUser,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}, nil
}

// ValidateEmail validates an email address shape. Case is preserved on
// storage; comparisons are done case-insensitively by the repository.
func ValidateEmail(email string) error {
	if email == "" {
		return oops.Code("VALIDATION_EMAIL_EMPTY").Errorf("email cannot be empty")
	}
	if len(email) > MaxEmailLength {
		return oops.Code("VALIDATION_EMAIL_TOO_LONG").
			With("max", MaxEmailLength).
			Errorf("email must be at most %d characters", MaxEmailLength)
	}
	if strings.TrimSpace(email) != email || !emailRegex.MatchString(email) {
		return oops.Code("VALIDATION_EMAIL_INVALID").Errorf("email address is not valid")
	}
	return nil
}

// IsLocked returns true if the principal is currently locked out.
func (p *Principal) IsLocked() bool {
	return IsLockedOut(p.LockedUntil)
}

// RecordFailure increments the failure counter and sets lockout if the
// threshold is reached.
func (p *Principal) RecordFailure() {
	p.FailedAttempts++
	p.LockedUntil = ComputeLockoutTime(p.FailedAttempts)
	p.UpdatedAt = time.Now()
}

// RecordSuccess resets the failure counter and lockout.
func (p *Principal) RecordSuccess() {
	p.FailedAttempts = 0
	p.LockedUntil = nil
	p.UpdatedAt = time.Now()
}

// WithoutCredentials returns a copy of the principal with the password
// hash cleared. Used by accessors that must not expose credentials.
func (p *Principal) WithoutCredentials() *Principal {
	clone := *p
	clone.PasswordHash = ""
	return &clone
}

// PrincipalRepository manages principal persistence.
type PrincipalRepository interface {
	// Create stores a new principal. A duplicate email or external id
	// surfaces as a wrapped ErrConflict.
	Create(ctx context.Context, principal *Principal) error

	// GetByID retrieves a principal by ID.
	GetByID(ctx context.Context, id ulid.ULID) (*Principal, error)

	// GetByEmail retrieves a principal by email (case-insensitive).
	GetByEmail(ctx context.Context, email string) (*Principal, error)

	// GetByExternalID retrieves a principal by its linked external identity.
	GetByExternalID(ctx context.Context, externalID string) (*Principal, error)

	// Update updates an existing principal.
	Update(ctx context.Context, principal *Principal) error

	// UpdatePassword updates only the password hash for a principal.
	UpdatePassword(ctx context.Context, id ulid.ULID, passwordHash string) error

	// Delete physically removes a principal. Only reachable when the
	// hard-delete policy is enabled; soft delete flips the active flag
	// through Update.
	Delete(ctx context.Context, id ulid.ULID) error
}

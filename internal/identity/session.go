// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Session token configuration.
const (
	// SessionTokenBytes is the raw entropy per token. 64 bytes hex-encode
	// to a 128-character opaque value.
	SessionTokenBytes = 64
)

// SessionToken represents an opaque bearer session credential.
// A nil ExpiresAt means the token never expires. That state is only
// produced when both expiry config values are zero and exists for
// compatibility with legacy installs; Sweep can purge such tokens.
type SessionToken struct {
	ID          ulid.ULID
	PrincipalID ulid.ULID
	Label       string
	Token       string
	LastUsedAt  *time.Time
	ExpiresAt   *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// NewSessionToken creates a validated SessionToken.
// expiresAt may be nil (non-expiring legacy token).
func NewSessionToken(principalID ulid.ULID, label, token string, expiresAt *time.Time, now time.Time) (*SessionToken, error) {
	if principalID.Compare(ulid.ULID{}) == 0 {
		return nil, oops.Code("SESSION_INVALID_PRINCIPAL").Errorf("principal ID cannot be zero")
	}
	if token == "" {
		return nil, oops.Code("SESSION_INVALID_TOKEN").Errorf("token value cannot be empty")
	}

	return &SessionToken{
		ID:          ulid.Make(),
		PrincipalID: principalID,
		Label:       label,
		Token:       token,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// IsExpiredAt returns true if the token is expired at the given time.
// Tokens without an expiry never expire.
func (t *SessionToken) IsExpiredAt(at time.Time) bool {
	return t.ExpiresAt != nil && at.After(*t.ExpiresAt)
}

// GenerateSessionToken draws SessionTokenBytes from the random source and
// hex-encodes them. Collisions are treated as negligible; the store's
// unique constraint on the token column is the backstop.
func GenerateSessionToken(random RandomSource) (string, error) {
	raw, err := random.Bytes(SessionTokenBytes)
	if err != nil {
		return "", oops.Code("SESSION_TOKEN_GENERATE_FAILED").
			With("requested_bytes", SessionTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(raw), nil
}

// SessionTokenRepository manages session token persistence.
type SessionTokenRepository interface {
	// Create stores a new session token. A duplicate token value surfaces
	// as a wrapped ErrConflict.
	Create(ctx context.Context, token *SessionToken) error

	// GetByToken retrieves a session token by its opaque value.
	GetByToken(ctx context.Context, token string) (*SessionToken, error)

	// GetByPrincipal retrieves all tokens for a principal, newest first.
	GetByPrincipal(ctx context.Context, principalID ulid.ULID) ([]*SessionToken, error)

	// UpdateLastUsed updates the LastUsedAt timestamp for a token.
	UpdateLastUsed(ctx context.Context, id ulid.ULID, lastUsed time.Time) error

	// DeleteByToken removes a token by its opaque value. Deleting zero
	// rows is not an error.
	DeleteByToken(ctx context.Context, token string) error

	// DeleteByPrincipal removes all tokens for a principal.
	DeleteByPrincipal(ctx context.Context, principalID ulid.ULID) error

	// DeleteExpired removes all tokens past their expiry at the given
	// time and returns the count of deleted records.
	DeleteExpired(ctx context.Context, at time.Time) (int64, error)

	// DeleteWithoutExpiry removes all tokens issued with no expiry and
	// returns the count of deleted records.
	DeleteWithoutExpiry(ctx context.Context) (int64, error)
}

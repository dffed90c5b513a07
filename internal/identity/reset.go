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

// Reset token configuration.
const (
	// ResetTokenBytes is the raw entropy per reset token (64 hex chars).
	ResetTokenBytes = 32

	// DefaultResetWindow is how long a reset token stays valid.
	DefaultResetWindow = time.Hour
)

// PasswordResetRecord represents a pending password reset request.
// The record is keyed by email, not principal id, so the request path
// never has to reveal whether an account exists. Only the adaptive hash
// of the token is stored; the raw token lives in the reset email alone.
//
// A record moves through Created -> Consumed | Expired | Superseded.
// "Superseded" is implicit: a successful Consume for the same email
// deletes every sibling record regardless of its own validity.
type PasswordResetRecord struct {
	ID        ulid.ULID
	Email     string
	TokenHash string
	CreatedAt time.Time
}

// NewPasswordResetRecord creates a validated reset record.
func NewPasswordResetRecord(email, tokenHash string, now time.Time) (*PasswordResetRecord, error) {
	if err := ValidateEmail(email); err != nil {
		return nil, err
	}
	if tokenHash == "" {
		return nil, oops.Code("RESET_INVALID_HASH").Errorf("token hash cannot be empty")
	}
	return &PasswordResetRecord{
		ID:        ulid.Make(),
		Email:     email,
		TokenHash: tokenHash,
		CreatedAt: now,
	}, nil
}

// IsExpiredAt returns true if the record is past the window at the given time.
func (r *PasswordResetRecord) IsExpiredAt(at time.Time, window time.Duration) bool {
	return at.After(r.CreatedAt.Add(window))
}

// GenerateResetToken draws ResetTokenBytes from the random source and
// hex-encodes them. The caller hashes the token before persisting it.
func GenerateResetToken(random RandomSource) (string, error) {
	raw, err := random.Bytes(ResetTokenBytes)
	if err != nil {
		return "", oops.Code("RESET_TOKEN_GENERATE_FAILED").
			With("requested_bytes", ResetTokenBytes).
			Wrap(err)
	}
	return hex.EncodeToString(raw), nil
}

// PasswordResetRepository manages reset record persistence.
type PasswordResetRepository interface {
	// Create stores a new reset record.
	Create(ctx context.Context, record *PasswordResetRecord) error

	// GetByEmail retrieves all reset records for an email, newest first.
	// An email with no records returns an empty slice, not ErrNotFound.
	GetByEmail(ctx context.Context, email string) ([]*PasswordResetRecord, error)

	// Delete removes a single reset record.
	Delete(ctx context.Context, id ulid.ULID) error

	// DeleteByEmail removes all reset records for an email and returns
	// the count of deleted records. Deleting zero rows is not an error;
	// the count lets a redeeming transaction detect that a concurrent
	// consumer already claimed the records.
	DeleteByEmail(ctx context.Context, email string) (int64, error)

	// DeleteOlderThan removes all records created before the cutoff and
	// returns the count of deleted records.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ExpiryConfig controls session token lifetimes.
// A zero value for the selected field means the token is issued without
// an expiry. That legacy state is deliberate but discouraged; see
// SweepConfig.PurgeNoExpiry.
type ExpiryConfig struct {
	TokenExpirationMinutes int
	RememberMeDays         int
}

// SweepConfig controls the expiry sweep.
type SweepConfig struct {
	// PurgeNoExpiry also deletes tokens that were issued without an
	// expiry, as a security hygiene measure.
	PurgeNoExpiry bool
}

// SweepResult reports what a sweep removed, for observability.
type SweepResult struct {
	ExpiredCount  int64
	NoExpiryCount int64
}

// SessionService issues, validates, and revokes opaque bearer tokens.
type SessionService struct {
	principals PrincipalRepository
	tokens     SessionTokenRepository
	clock      Clock
	random     RandomSource
	logger     *slog.Logger
}

// NewSessionService creates a SessionService. All dependencies are required.
func NewSessionService(principals PrincipalRepository, tokens SessionTokenRepository, clock Clock, random RandomSource, logger *slog.Logger) (*SessionService, error) {
	if principals == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("principals repository is required")
	}
	if tokens == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("tokens repository is required")
	}
	if clock == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("clock is required")
	}
	if random == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("random source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionService{
		principals: principals,
		tokens:     tokens,
		clock:      clock,
		random:     random,
		logger:     logger,
	}, nil
}

// Issue creates a new bearer token for a principal.
// rememberMe selects the long-lived window (cfg.RememberMeDays) over the
// default one (cfg.TokenExpirationMinutes). Returns the opaque token value
// and its expiry (nil when no expiry applies).
func (s *SessionService) Issue(ctx context.Context, principalID ulid.ULID, label string, rememberMe bool, cfg ExpiryConfig) (string, *time.Time, error) {
	token, err := GenerateSessionToken(s.random)
	if err != nil {
		return "", nil, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "generate token").
			Wrap(err)
	}

	now := s.clock.Now()
	var expiresAt *time.Time
	switch {
	case rememberMe && cfg.RememberMeDays > 0:
		t := now.Add(time.Duration(cfg.RememberMeDays) * 24 * time.Hour)
		expiresAt = &t
	case !rememberMe && cfg.TokenExpirationMinutes > 0:
		t := now.Add(time.Duration(cfg.TokenExpirationMinutes) * time.Minute)
		expiresAt = &t
	}
	if expiresAt == nil {
		s.logger.Warn("issuing session token without expiry",
			"principal_id", principalID.String(),
			"label", label)
	}

	session, err := NewSessionToken(principalID, label, token, expiresAt, now)
	if err != nil {
		return "", nil, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "create session token").
			Wrap(err)
	}

	if err := s.tokens.Create(ctx, session); err != nil {
		return "", nil, oops.Code("SESSION_ISSUE_FAILED").
			With("operation", "persist session token").
			With("principal_id", principalID.String()).
			Wrap(err)
	}

	return token, expiresAt, nil
}

// Validate looks up a non-expired token and returns its principal without
// credentials. A missing or expired token yields AUTH_NOT_AUTHENTICATED;
// callers must not learn which of the two it was.
func (s *SessionService) Validate(ctx context.Context, token string) (*Principal, error) {
	if token == "" {
		return nil, oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("not authenticated")
	}

	session, err := s.tokens.GetByToken(ctx, token)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("not authenticated")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get token").
			Wrap(err)
	}

	now := s.clock.Now()
	if session.IsExpiredAt(now) {
		return nil, oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("not authenticated")
	}

	// Opportunistic; validation succeeds even if this write fails.
	if err := s.tokens.UpdateLastUsed(ctx, session.ID, now); err != nil {
		s.logger.Debug("session last-used update failed",
			"session_id", session.ID.String(),
			"error", err)
	}

	principal, err := s.principals.GetByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Token outlived its principal; treat as unauthenticated.
			return nil, oops.Code("AUTH_NOT_AUTHENTICATED").Errorf("not authenticated")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get principal").
			Wrap(err)
	}

	return principal.WithoutCredentials(), nil
}

// RevokeByToken deletes a single token. Idempotent: revoking an unknown
// token is not an error.
func (s *SessionService) RevokeByToken(ctx context.Context, token string) error {
	if err := s.tokens.DeleteByToken(ctx, token); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete token").
			Wrap(err)
	}
	return nil
}

// RevokeAllForPrincipal deletes every token for a principal. Idempotent.
func (s *SessionService) RevokeAllForPrincipal(ctx context.Context, principalID ulid.ULID) error {
	if err := s.tokens.DeleteByPrincipal(ctx, principalID); err != nil {
		return oops.Code("SESSION_REVOKE_FAILED").
			With("operation", "delete tokens by principal").
			With("principal_id", principalID.String()).
			Wrap(err)
	}
	return nil
}

// Sweep deletes tokens past their expiry and, when cfg.PurgeNoExpiry is
// set, tokens issued without one. Invoked by an external scheduler.
func (s *SessionService) Sweep(ctx context.Context, cfg SweepConfig) (SweepResult, error) {
	var result SweepResult

	expired, err := s.tokens.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return result, oops.Code("SESSION_SWEEP_FAILED").
			With("operation", "delete expired tokens").
			Wrap(err)
	}
	result.ExpiredCount = expired

	if cfg.PurgeNoExpiry {
		purged, err := s.tokens.DeleteWithoutExpiry(ctx)
		if err != nil {
			return result, oops.Code("SESSION_SWEEP_FAILED").
				With("operation", "delete tokens without expiry").
				Wrap(err)
		}
		result.NoExpiryCount = purged
	}

	return result, nil
}

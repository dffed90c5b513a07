// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"errors"
	"log/slog"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// dummyPasswordHash is verified against when a principal doesn't exist so
// that the response time of Authenticate does not leak account existence.
// This is NOT a real credential; it never matches any password.
//
//nolint:gosec // G101: intentionally fake hash for timing normalization, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// CredentialConfig configures the credential service.
type CredentialConfig struct {
	// Policy is the password acceptance policy for Register and
	// ChangePassword.
	Policy PasswordPolicy

	// AllowHardDelete enables physical deletion of principals. The
	// default is soft delete via the active flag.
	AllowHardDelete bool
}

// CredentialService creates and authenticates principals.
type CredentialService struct {
	principals PrincipalRepository
	hasher     PasswordHasher
	cfg        CredentialConfig
	logger     *slog.Logger
}

// NewCredentialService creates a CredentialService.
func NewCredentialService(principals PrincipalRepository, hasher PasswordHasher, cfg CredentialConfig, logger *slog.Logger) (*CredentialService, error) {
	if principals == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("principals repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("password hasher is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CredentialService{
		principals: principals,
		hasher:     hasher,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// Policy returns the active password policy.
func (s *CredentialService) Policy() PasswordPolicy {
	return s.cfg.Policy
}

// Register creates a new principal with a policy-checked, hashed password.
// Policy violations come back as a VALIDATION_POLICY error carrying the
// structured result; a taken email surfaces as CONFLICT_EMAIL_EXISTS.
func (s *CredentialService) Register(ctx context.Context, email, displayName, password string) (*Principal, error) {
	result, ok := ValidatePolicy(password, s.cfg.Policy)
	if !ok {
		return nil, oops.Code("VALIDATION_POLICY").
			With("violations", result.Violations).
			With("score", result.Score).
			Errorf("password does not satisfy the policy")
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	principal, err := NewPrincipal(email, displayName, hash)
	if err != nil {
		return nil, err
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code("CONFLICT_EMAIL_EXISTS").
				With("email", email).
				Wrap(err)
		}
		return nil, oops.Code("REGISTER_FAILED").
			With("operation", "persist principal").
			Wrap(err)
	}

	return principal.WithoutCredentials(), nil
}

// Authenticate verifies an email/password pair.
// An unknown email, a wrong password, and an inactive account all produce
// the same opaque AUTH_INVALID_CREDENTIALS error; verification runs against
// a dummy hash when the account is missing to keep response time constant.
func (s *CredentialService) Authenticate(ctx context.Context, email, password string) (*Principal, error) {
	principal, lookupErr := s.principals.GetByEmail(ctx, email)

	targetHash := dummyPasswordHash
	exists := false
	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, oops.Code("AUTH_FAILED").
				With("operation", "get principal by email").
				Wrap(lookupErr)
		}
	} else {
		targetHash = principal.PasswordHash
		exists = true
	}

	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		if !exists {
			return nil, invalidCredentials()
		}
		return nil, oops.Code("AUTH_FAILED").
			With("operation", "verify password").
			Wrap(verifyErr)
	}

	if !exists || !valid {
		if exists {
			principal.RecordFailure()
			if err := s.principals.Update(ctx, principal); err != nil {
				s.logger.Debug("failure counter update failed",
					"principal_id", principal.ID.String(),
					"error", err)
			}
		}
		return nil, invalidCredentials()
	}

	// Lockout is checked after verification to keep timing constant.
	if principal.IsLocked() {
		return nil, oops.Code("AUTH_ACCOUNT_LOCKED").
			With("locked_until", principal.LockedUntil).
			Errorf("account is temporarily locked")
	}

	if !principal.Active {
		return nil, invalidCredentials()
	}

	principal.RecordSuccess()

	// Transparent upgrade for hashes imported from legacy installs.
	if s.hasher.NeedsUpgrade(principal.PasswordHash) {
		if newHash, hashErr := s.hasher.Hash(password); hashErr == nil {
			principal.PasswordHash = newHash
		}
	}

	// Best effort; authentication succeeds even if the update fails.
	if err := s.principals.Update(ctx, principal); err != nil {
		s.logger.Debug("post-login principal update failed",
			"principal_id", principal.ID.String(),
			"error", err)
	}

	return principal.WithoutCredentials(), nil
}

func invalidCredentials() error {
	return oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid email or password")
}

// GetPrincipal retrieves a principal with the password hash cleared.
// This is the accessor route handlers should reach for.
func (s *CredentialService) GetPrincipal(ctx context.Context, id ulid.ULID) (*Principal, error) {
	principal, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return principal.WithoutCredentials(), nil
}

// GetPrincipalWithCredentials retrieves a principal including the password
// hash. The name marks the privilege boundary at call sites; use
// GetPrincipal unless the hash is genuinely needed.
func (s *CredentialService) GetPrincipalWithCredentials(ctx context.Context, id ulid.ULID) (*Principal, error) {
	return s.principals.GetByID(ctx, id)
}

// GetPrincipalByEmail retrieves a principal by email with the password
// hash cleared.
func (s *CredentialService) GetPrincipalByEmail(ctx context.Context, email string) (*Principal, error) {
	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	return principal.WithoutCredentials(), nil
}

// UpdateProfile changes the display name and cached avatar URL.
func (s *CredentialService) UpdateProfile(ctx context.Context, id ulid.ULID, displayName string, avatarURL *string) (*Principal, error) {
	if len(displayName) > MaxDisplayNameLength {
		return nil, oops.Code("VALIDATION_NAME_TOO_LONG").
			With("max", MaxDisplayNameLength).
			Errorf("display name must be at most %d characters", MaxDisplayNameLength)
	}

	principal, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	principal.DisplayName = displayName
	principal.AvatarURL = avatarURL

	if err := s.principals.Update(ctx, principal); err != nil {
		return nil, oops.Code("PROFILE_UPDATE_FAILED").
			With("principal_id", id.String()).
			Wrap(err)
	}

	return principal.WithoutCredentials(), nil
}

// ChangePassword verifies the current password and sets a new one.
func (s *CredentialService) ChangePassword(ctx context.Context, id ulid.ULID, current, next string) error {
	principal, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return err
	}

	valid, err := s.hasher.Verify(current, principal.PasswordHash)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "verify current password").
			Wrap(err)
	}
	if !valid {
		return invalidCredentials()
	}

	result, ok := ValidatePolicy(next, s.cfg.Policy)
	if !ok {
		return oops.Code("VALIDATION_POLICY").
			With("violations", result.Violations).
			With("score", result.Score).
			Errorf("password does not satisfy the policy")
	}

	hash, err := s.hasher.Hash(next)
	if err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	if err := s.principals.UpdatePassword(ctx, id, hash); err != nil {
		return oops.Code("PASSWORD_CHANGE_FAILED").
			With("operation", "persist new password").
			Wrap(err)
	}
	return nil
}

// Deactivate soft-deletes a principal by clearing the active flag.
// Existing session tokens stay valid until revoked or swept; callers that
// need immediate revocation pair this with RevokeAllForPrincipal.
func (s *CredentialService) Deactivate(ctx context.Context, id ulid.ULID) error {
	principal, err := s.principals.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !principal.Active {
		return nil
	}
	principal.Active = false
	if err := s.principals.Update(ctx, principal); err != nil {
		return oops.Code("DEACTIVATE_FAILED").
			With("principal_id", id.String()).
			Wrap(err)
	}
	return nil
}

// HardDelete physically removes a principal. Refused unless the explicit
// hard-delete policy is enabled in configuration.
func (s *CredentialService) HardDelete(ctx context.Context, id ulid.ULID) error {
	if !s.cfg.AllowHardDelete {
		return oops.Code("CONFIG_HARD_DELETE_DISABLED").
			Errorf("hard delete is disabled; deactivate the principal instead")
	}
	if err := s.principals.Delete(ctx, id); err != nil {
		return oops.Code("HARD_DELETE_FAILED").
			With("principal_id", id.String()).
			Wrap(err)
	}
	return nil
}

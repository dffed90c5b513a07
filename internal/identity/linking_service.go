// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"encoding/hex"
	"errors"
	"log/slog"

	"github.com/samber/oops"
)

// placeholderPasswordBytes is the entropy behind the unusable password
// given to auto-provisioned principals. The raw value is discarded after
// hashing, so the account can only ever log in through its external
// identity or a password reset.
const placeholderPasswordBytes = 32

// ExternalIdentity is a verified identity asserted by an upstream OAuth
// provider after token exchange.
type ExternalIdentity struct {
	ExternalID  string
	Email       string
	DisplayName string
	AvatarURL   string
	Verified    bool
}

// LinkingService resolves external identities to local principals.
type LinkingService struct {
	principals PrincipalRepository
	hasher     PasswordHasher
	random     RandomSource
	logger     *slog.Logger
}

// NewLinkingService creates a LinkingService.
func NewLinkingService(principals PrincipalRepository, hasher PasswordHasher, random RandomSource, logger *slog.Logger) (*LinkingService, error) {
	if principals == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("principals repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("password hasher is required")
	}
	if random == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("random source is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LinkingService{
		principals: principals,
		hasher:     hasher,
		random:     random,
		logger:     logger,
	}, nil
}

// Resolve maps a verified external identity to a local principal.
//
// Resolution order: existing external-id link, then email match (the
// external id is attached, existing role preserved), then auto-provision
// when allowed. (nil, nil) means "not registered" and is distinct from an
// error; callers must treat it as a business outcome.
//
// Resolve does not check the active flag: rejecting an inactive principal
// before issuing a session token is a caller responsibility.
func (s *LinkingService) Resolve(ctx context.Context, ext ExternalIdentity, allowAutoProvision bool) (*Principal, error) {
	if !ext.Verified {
		return nil, oops.Code("VALIDATION_UNVERIFIED_IDENTITY").
			Errorf("external identity must assert a verified email")
	}
	if ext.ExternalID == "" {
		return nil, oops.Code("VALIDATION_EXTERNAL_ID_EMPTY").Errorf("external id cannot be empty")
	}

	principal, err := s.principals.GetByExternalID(ctx, ext.ExternalID)
	switch {
	case err == nil:
		s.refreshAvatar(ctx, principal, ext.AvatarURL)
		return principal.WithoutCredentials(), nil
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("LINKING_FAILED").
			With("operation", "get principal by external id").
			Wrap(err)
	}

	principal, err = s.principals.GetByEmail(ctx, ext.Email)
	switch {
	case err == nil:
		return s.attach(ctx, principal, ext)
	case !errors.Is(err, ErrNotFound):
		return nil, oops.Code("LINKING_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}

	if !allowAutoProvision {
		return nil, nil
	}

	return s.provision(ctx, ext)
}

// attach links the external identity to an existing account found by
// email. The principal's role is preserved.
func (s *LinkingService) attach(ctx context.Context, principal *Principal, ext ExternalIdentity) (*Principal, error) {
	externalID := ext.ExternalID
	principal.ExternalID = &externalID
	if ext.AvatarURL != "" {
		avatar := ext.AvatarURL
		principal.AvatarURL = &avatar
	}

	if err := s.principals.Update(ctx, principal); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, oops.Code("CONFLICT_EXTERNAL_ID").
				With("external_id", ext.ExternalID).
				Wrap(err)
		}
		return nil, oops.Code("LINKING_FAILED").
			With("operation", "attach external id").
			With("principal_id", principal.ID.String()).
			Wrap(err)
	}

	return principal.WithoutCredentials(), nil
}

// provision creates a new principal for a first-time external login. The
// placeholder password is random and never usable via normal login.
func (s *LinkingService) provision(ctx context.Context, ext ExternalIdentity) (*Principal, error) {
	raw, err := s.random.Bytes(placeholderPasswordBytes)
	if err != nil {
		return nil, oops.Code("LINKING_FAILED").
			With("operation", "generate placeholder password").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(hex.EncodeToString(raw))
	if err != nil {
		return nil, oops.Code("LINKING_FAILED").
			With("operation", "hash placeholder password").
			Wrap(err)
	}

	principal, err := NewPrincipal(ext.Email, ext.DisplayName, hash)
	if err != nil {
		return nil, err
	}

	externalID := ext.ExternalID
	principal.ExternalID = &externalID
	if ext.AvatarURL != "" {
		avatar := ext.AvatarURL
		principal.AvatarURL = &avatar
	}

	if err := s.principals.Create(ctx, principal); err != nil {
		if errors.Is(err, ErrConflict) {
			// Lost a race with another provisioner for the same identity.
			return nil, oops.Code("CONFLICT_EXTERNAL_ID").
				With("external_id", ext.ExternalID).
				Wrap(err)
		}
		return nil, oops.Code("LINKING_FAILED").
			With("operation", "persist provisioned principal").
			Wrap(err)
	}

	return principal.WithoutCredentials(), nil
}

// refreshAvatar opportunistically updates the cached avatar URL when the
// provider reports a new one. Failure is logged, never surfaced.
func (s *LinkingService) refreshAvatar(ctx context.Context, principal *Principal, avatarURL string) {
	if avatarURL == "" {
		return
	}
	if principal.AvatarURL != nil && *principal.AvatarURL == avatarURL {
		return
	}
	avatar := avatarURL
	principal.AvatarURL = &avatar
	if err := s.principals.Update(ctx, principal); err != nil {
		s.logger.Debug("avatar refresh failed",
			"principal_id", principal.ID.String(),
			"error", err)
	}
}

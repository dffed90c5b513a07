// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/internal/identity/mocks"
	"github.com/keyfold/keyfold/pkg/errutil"
)

func newCredentialService(t *testing.T, cfg identity.CredentialConfig) (*identity.CredentialService, *mocks.MockPrincipalRepository, *mocks.MockPasswordHasher) {
	t.Helper()

	principals := mocks.NewMockPrincipalRepository(t)
	hasher := mocks.NewMockPasswordHasher(t)

	if cfg.Policy.MinLength == 0 {
		cfg.Policy = identity.DefaultPasswordPolicy()
	}

	svc, err := identity.NewCredentialService(principals, hasher, cfg, nil)
	require.NoError(t, err)
	return svc, principals, hasher
}

func TestNewCredentialService_NilDependencies(t *testing.T) {
	_, err := identity.NewCredentialService(nil, mocks.NewMockPasswordHasher(t), identity.CredentialConfig{}, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")

	_, err = identity.NewCredentialService(mocks.NewMockPrincipalRepository(t), nil, identity.CredentialConfig{}, nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
}

func TestCredentialService_Register(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	hasher.On("Hash", "Passw0rd!").Return("$argon2id$hashed", nil)

	var created *identity.Principal
	principals.On("Create", ctx, mock.AnythingOfType("*identity.Principal")).
		Run(func(args mock.Arguments) {
			created = args.Get(1).(*identity.Principal)
		}).
		Return(nil)

	principal, err := svc.Register(ctx, "ada@example.com", "Ada", "Passw0rd!")
	require.NoError(t, err)

	assert.Empty(t, principal.PasswordHash, "Register must not return credentials")
	require.NotNil(t, created)
	assert.Equal(t, "$argon2id$hashed", created.PasswordHash)
	assert.Equal(t, "ada@example.com", created.Email)
	assert.True(t, created.Active)
}

func TestCredentialService_Register_PolicyViolation(t *testing.T) {
	svc, _, _ := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	_, err := svc.Register(ctx, "ada@example.com", "Ada", "weak")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "VALIDATION_POLICY")
}

func TestCredentialService_Register_DuplicateEmail(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	hasher.On("Hash", "Passw0rd!").Return("$argon2id$hashed", nil)
	principals.On("Create", ctx, mock.Anything).Return(identity.ErrConflict)

	_, err := svc.Register(ctx, "ada@example.com", "Ada", "Passw0rd!")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFLICT_EMAIL_EXISTS")
	errutil.AssertErrorContext(t, err, "email", "ada@example.com")
}

func TestCredentialService_Authenticate_Success(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$hash")
	require.NoError(t, err)

	principals.On("GetByEmail", ctx, "ada@example.com").Return(principal, nil)
	hasher.On("Verify", "Passw0rd!", "$argon2id$hash").Return(true, nil)
	hasher.On("NeedsUpgrade", "$argon2id$hash").Return(false)
	principals.On("Update", ctx, principal).Return(nil)

	got, err := svc.Authenticate(ctx, "ada@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, principal.ID, got.ID)
	assert.Empty(t, got.PasswordHash)
}

func TestCredentialService_Authenticate_WrongPassword(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$hash")
	require.NoError(t, err)

	principals.On("GetByEmail", ctx, "ada@example.com").Return(principal, nil)
	hasher.On("Verify", "wrong", "$argon2id$hash").Return(false, nil)
	principals.On("Update", ctx, principal).Return(nil)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	assert.Equal(t, 1, principal.FailedAttempts, "failed attempt must be recorded")
}

func TestCredentialService_Authenticate_UnknownEmailStillHashes(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principals.On("GetByEmail", ctx, "ghost@example.com").Return(nil, identity.ErrNotFound)

	// The dummy hash keeps the work profile identical to a real account.
	hasher.On("Verify", "anything", mock.AnythingOfType("string")).Return(false, nil)

	_, err := svc.Authenticate(ctx, "ghost@example.com", "anything")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
	hasher.AssertCalled(t, "Verify", "anything", mock.AnythingOfType("string"))
}

func TestCredentialService_Authenticate_InactiveAccount(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$hash")
	require.NoError(t, err)
	principal.Active = false

	principals.On("GetByEmail", ctx, "ada@example.com").Return(principal, nil)
	hasher.On("Verify", "Passw0rd!", "$argon2id$hash").Return(true, nil)

	// Same opaque error as a wrong password.
	_, err = svc.Authenticate(ctx, "ada@example.com", "Passw0rd!")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
}

func TestCredentialService_Authenticate_LockedAccount(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$hash")
	require.NoError(t, err)
	until := time.Now().Add(10 * time.Minute)
	principal.LockedUntil = &until

	principals.On("GetByEmail", ctx, "ada@example.com").Return(principal, nil)
	hasher.On("Verify", "Passw0rd!", "$argon2id$hash").Return(true, nil)

	_, err = svc.Authenticate(ctx, "ada@example.com", "Passw0rd!")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_ACCOUNT_LOCKED")
}

func TestCredentialService_Authenticate_UpgradesLegacyHash(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$2a$12$legacybcrypt")
	require.NoError(t, err)

	principals.On("GetByEmail", ctx, "ada@example.com").Return(principal, nil)
	hasher.On("Verify", "Passw0rd!", "$2a$12$legacybcrypt").Return(true, nil)
	hasher.On("NeedsUpgrade", "$2a$12$legacybcrypt").Return(true)
	hasher.On("Hash", "Passw0rd!").Return("$argon2id$fresh", nil)

	var updated *identity.Principal
	principals.On("Update", ctx, mock.Anything).
		Run(func(args mock.Arguments) {
			updated = args.Get(1).(*identity.Principal)
		}).
		Return(nil)

	_, err = svc.Authenticate(ctx, "ada@example.com", "Passw0rd!")
	require.NoError(t, err)
	require.NotNil(t, updated)
	assert.Equal(t, "$argon2id$fresh", updated.PasswordHash)
}

func TestCredentialService_ChangePassword(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$old")
	require.NoError(t, err)

	principals.On("GetByID", ctx, principal.ID).Return(principal, nil)
	hasher.On("Verify", "OldPassw0rd!", "$argon2id$old").Return(true, nil)
	hasher.On("Hash", "N3wPassw0rd!").Return("$argon2id$new", nil)
	principals.On("UpdatePassword", ctx, principal.ID, "$argon2id$new").Return(nil)

	require.NoError(t, svc.ChangePassword(ctx, principal.ID, "OldPassw0rd!", "N3wPassw0rd!"))
}

func TestCredentialService_ChangePassword_WrongCurrent(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$old")
	require.NoError(t, err)

	principals.On("GetByID", ctx, principal.ID).Return(principal, nil)
	hasher.On("Verify", "wrong", "$argon2id$old").Return(false, nil)

	err = svc.ChangePassword(ctx, principal.ID, "wrong", "N3wPassw0rd!")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_INVALID_CREDENTIALS")
}

func TestCredentialService_ChangePassword_NewPasswordFailsPolicy(t *testing.T) {
	svc, principals, hasher := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "$argon2id$old")
	require.NoError(t, err)

	principals.On("GetByID", ctx, principal.ID).Return(principal, nil)
	hasher.On("Verify", "OldPassw0rd!", "$argon2id$old").Return(true, nil)

	err = svc.ChangePassword(ctx, principal.ID, "OldPassw0rd!", "weak")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "VALIDATION_POLICY")
}

func TestCredentialService_UpdateProfile(t *testing.T) {
	svc, principals, _ := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "h")
	require.NoError(t, err)

	principals.On("GetByID", ctx, principal.ID).Return(principal, nil)
	principals.On("Update", ctx, principal).Return(nil)

	avatar := "https://cdn.example.com/a.png"
	got, err := svc.UpdateProfile(ctx, principal.ID, "Ada Lovelace", &avatar)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.DisplayName)
	assert.Equal(t, &avatar, got.AvatarURL)
	assert.Empty(t, got.PasswordHash)
}

func TestCredentialService_Deactivate(t *testing.T) {
	svc, principals, _ := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "h")
	require.NoError(t, err)

	principals.On("GetByID", ctx, principal.ID).Return(principal, nil)
	principals.On("Update", ctx, principal).Return(nil)

	require.NoError(t, svc.Deactivate(ctx, principal.ID))
	assert.False(t, principal.Active)
}

func TestCredentialService_Deactivate_AlreadyInactive(t *testing.T) {
	svc, principals, _ := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principal, err := identity.NewPrincipal("ada@example.com", "Ada", "h")
	require.NoError(t, err)
	principal.Active = false

	principals.On("GetByID", ctx, principal.ID).Return(principal, nil)

	// Idempotent: no write issued.
	require.NoError(t, svc.Deactivate(ctx, principal.ID))
	principals.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestCredentialService_HardDelete_DisabledByDefault(t *testing.T) {
	svc, principals, _ := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	err := svc.HardDelete(ctx, ulid.Make())
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "CONFIG_HARD_DELETE_DISABLED")
	principals.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
}

func TestCredentialService_HardDelete_Enabled(t *testing.T) {
	svc, principals, _ := newCredentialService(t, identity.CredentialConfig{AllowHardDelete: true})
	ctx := context.Background()

	id := ulid.Make()
	principals.On("Delete", ctx, id).Return(nil)

	require.NoError(t, svc.HardDelete(ctx, id))
}

func TestCredentialService_Authenticate_StoreError(t *testing.T) {
	svc, principals, _ := newCredentialService(t, identity.CredentialConfig{})
	ctx := context.Background()

	principals.On("GetByEmail", ctx, "ada@example.com").Return(nil, errors.New("store down"))

	_, err := svc.Authenticate(ctx, "ada@example.com", "Passw0rd!")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_FAILED")
}

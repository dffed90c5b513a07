// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity_test

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/pkg/errutil"
)

func TestNewSessionToken(t *testing.T) {
	principalID := ulid.Make()
	now := time.Now()
	expiry := now.Add(time.Hour)

	token, err := identity.NewSessionToken(principalID, "cli", "deadbeef", &expiry, now)
	require.NoError(t, err)

	assert.NotEqual(t, ulid.ULID{}, token.ID)
	assert.Equal(t, principalID, token.PrincipalID)
	assert.Equal(t, "cli", token.Label)
	assert.Equal(t, "deadbeef", token.Token)
	assert.Equal(t, &expiry, token.ExpiresAt)
	assert.Nil(t, token.LastUsedAt)
	assert.Equal(t, now, token.CreatedAt)
}

func TestNewSessionToken_Validation(t *testing.T) {
	now := time.Now()

	_, err := identity.NewSessionToken(ulid.ULID{}, "cli", "deadbeef", nil, now)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_PRINCIPAL")

	_, err = identity.NewSessionToken(ulid.Make(), "cli", "", nil, now)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SESSION_INVALID_TOKEN")
}

func TestSessionToken_IsExpiredAt(t *testing.T) {
	now := time.Now()
	expiry := now.Add(time.Hour)

	token, err := identity.NewSessionToken(ulid.Make(), "", "deadbeef", &expiry, now)
	require.NoError(t, err)

	assert.False(t, token.IsExpiredAt(now))
	assert.False(t, token.IsExpiredAt(expiry), "expiry instant itself is still valid")
	assert.True(t, token.IsExpiredAt(expiry.Add(time.Nanosecond)))

	// nil expiry never expires
	eternal, err := identity.NewSessionToken(ulid.Make(), "", "deadbeef", nil, now)
	require.NoError(t, err)
	assert.False(t, eternal.IsExpiredAt(now.Add(100*24*365*time.Hour)))
}

func TestGenerateSessionToken_Distinct(t *testing.T) {
	random := identity.CryptoRandomSource{}

	seen := make(map[string]struct{}, 1000)
	for range 1000 {
		token, err := identity.GenerateSessionToken(random)
		require.NoError(t, err)
		assert.Len(t, token, identity.SessionTokenBytes*2, "token must be hex of %d bytes", identity.SessionTokenBytes)

		_, dup := seen[token]
		require.False(t, dup, "duplicate token generated")
		seen[token] = struct{}{}
	}
}

func TestGenerateResetToken(t *testing.T) {
	random := identity.CryptoRandomSource{}

	first, err := identity.GenerateResetToken(random)
	require.NoError(t, err)
	assert.Len(t, first, identity.ResetTokenBytes*2)

	second, err := identity.GenerateResetToken(random)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

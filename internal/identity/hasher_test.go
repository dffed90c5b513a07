// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/identity"
	"github.com/keyfold/keyfold/pkg/errutil"
)

func TestArgon2idHasher_HashAndVerify(t *testing.T) {
	hasher := identity.NewArgon2idHasher()

	hash, err := hasher.Hash("correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$"), "hash not in PHC format: %s", hash)

	valid, err := hasher.Verify("correct horse battery staple", hash)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = hasher.Verify("wrong password", hash)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestArgon2idHasher_HashIsSalted(t *testing.T) {
	hasher := identity.NewArgon2idHasher()

	first, err := hasher.Hash("same password")
	require.NoError(t, err)
	second, err := hasher.Hash("same password")
	require.NoError(t, err)

	assert.NotEqual(t, first, second, "two hashes of the same password must differ")
}

func TestArgon2idHasher_EmptyPassword(t *testing.T) {
	hasher := identity.NewArgon2idHasher()

	_, err := hasher.Hash("")
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "VALIDATION_PASSWORD_EMPTY")
}

func TestArgon2idHasher_VerifyRejectsMalformedHash(t *testing.T) {
	hasher := identity.NewArgon2idHasher()

	tests := []struct {
		name string
		hash string
	}{
		{"empty", ""},
		{"not a hash", "hunter2"},
		{"wrong algorithm", "$bcrypt$v=19$m=65536,t=1,p=4$c2FsdA$aGFzaA"},
		{"bad salt encoding", "$argon2id$v=19$m=65536,t=1,p=4$!!!$aGFzaA"},
		{"missing segments", "$argon2id$v=19$m=65536,t=1,p=4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid, err := hasher.Verify("password", tt.hash)
			require.Error(t, err)
			assert.False(t, valid)
			errutil.AssertErrorCode(t, err, "HASH_INVALID")
		})
	}
}

func TestArgon2idHasher_VerifyHonoursStoredParameters(t *testing.T) {
	hasher := identity.NewArgon2idHasher()

	// A hash produced with a lower memory cost than the current build
	// still verifies: the parameters come from the hash, not the code.
	legacy := "$argon2id$v=19$m=32768,t=2,p=2$c29tZXNhbHRzb21lc2E$kPZ0P3139aSAnd7PLlr8QmkTnZByZu8LvZr6KCc/+k0"
	_, err := hasher.Verify("password", legacy)
	require.NoError(t, err, "parameter mismatch must not be an error")
}

func TestArgon2idHasher_NeedsUpgrade(t *testing.T) {
	hasher := identity.NewArgon2idHasher()

	assert.True(t, hasher.NeedsUpgrade("$2a$12$abcdefghijklmnopqrstuv"), "bcrypt hash should need upgrade")
	assert.True(t, hasher.NeedsUpgrade("plain-sha256-hex"), "opaque hash should need upgrade")

	hash, err := hasher.Hash("password123!")
	require.NoError(t, err)
	assert.False(t, hasher.NeedsUpgrade(hash))
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keyfold/keyfold/internal/identity"
)

func testSessionToken(t *testing.T) *identity.SessionToken {
	t.Helper()
	principal := testPrincipal(t)
	value, err := identity.GenerateSessionToken(identity.CryptoRandomSource{})
	require.NoError(t, err)
	now := time.Now().UTC()
	expires := now.Add(24 * time.Hour)
	token, err := identity.NewSessionToken(principal.ID, "cli", value, &expires, now)
	require.NoError(t, err)
	return token
}

func sessionRows(s *identity.SessionToken) *pgxmock.Rows {
	return pgxmock.NewRows([]string{
		"id", "principal_id", "label", "token", "last_used_at",
		"expires_at", "created_at", "updated_at",
	}).AddRow(
		s.ID.String(), s.PrincipalID.String(), s.Label, s.Token,
		s.LastUsedAt, s.ExpiresAt, s.CreatedAt, s.UpdatedAt,
	)
}

func TestSessionTokenRepository_Create(t *testing.T) {
	session := testSessionToken(t)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO session_tokens`).
					WithArgs(
						session.ID.String(), session.PrincipalID.String(),
						session.Label, session.Token, session.LastUsedAt,
						session.ExpiresAt, session.CreatedAt, session.UpdatedAt,
					).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectExec(`INSERT INTO session_tokens`).
					WithArgs(
						session.ID.String(), session.PrincipalID.String(),
						session.Label, session.Token, session.LastUsedAt,
						session.ExpiresAt, session.CreatedAt, session.UpdatedAt,
					).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewSessionTokenRepository(mock)
			err = repo.Create(context.Background(), session)

			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestSessionTokenRepository_GetByToken(t *testing.T) {
	session := testSessionToken(t)

	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface)
		wantErr   bool
		wantIs    error
	}{
		{
			name: "found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM session_tokens WHERE token = \$1`).
					WithArgs(session.Token).
					WillReturnRows(sessionRows(session))
			},
		},
		{
			name: "not found",
			setupMock: func(mock pgxmock.PgxPoolIface) {
				mock.ExpectQuery(`SELECT .+ FROM session_tokens WHERE token = \$1`).
					WithArgs(session.Token).
					WillReturnRows(pgxmock.NewRows([]string{
						"id", "principal_id", "label", "token", "last_used_at",
						"expires_at", "created_at", "updated_at",
					}))
			},
			wantErr: true,
			wantIs:  identity.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			tt.setupMock(mock)

			repo := NewSessionTokenRepository(mock)
			got, err := repo.GetByToken(context.Background(), session.Token)

			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, tt.wantIs)
			} else {
				require.NoError(t, err)
				assert.Equal(t, session.ID, got.ID)
				assert.Equal(t, session.PrincipalID, got.PrincipalID)
				require.NotNil(t, got.ExpiresAt)
				assert.True(t, got.ExpiresAt.Equal(*session.ExpiresAt))
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestSessionTokenRepository_GetByPrincipal(t *testing.T) {
	session := testSessionToken(t)

	t.Run("returns sessions", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectQuery(`SELECT .+ FROM session_tokens WHERE principal_id = \$1 ORDER BY created_at DESC`).
			WithArgs(session.PrincipalID.String()).
			WillReturnRows(sessionRows(session))

		repo := NewSessionTokenRepository(mock)
		got, err := repo.GetByPrincipal(context.Background(), session.PrincipalID)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, session.ID, got[0].ID)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("no sessions", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectQuery(`SELECT .+ FROM session_tokens WHERE principal_id = \$1 ORDER BY created_at DESC`).
			WithArgs(session.PrincipalID.String()).
			WillReturnRows(pgxmock.NewRows([]string{
				"id", "principal_id", "label", "token", "last_used_at",
				"expires_at", "created_at", "updated_at",
			}))

		repo := NewSessionTokenRepository(mock)
		got, err := repo.GetByPrincipal(context.Background(), session.PrincipalID)
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("row iteration error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		rows := sessionRows(session).RowError(0, errors.New("row iteration error"))
		mock.ExpectQuery(`SELECT .+ FROM session_tokens WHERE principal_id = \$1 ORDER BY created_at DESC`).
			WithArgs(session.PrincipalID.String()).
			WillReturnRows(rows)

		repo := NewSessionTokenRepository(mock)
		_, err = repo.GetByPrincipal(context.Background(), session.PrincipalID)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "row iteration error")
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestSessionTokenRepository_UpdateLastUsed(t *testing.T) {
	session := testSessionToken(t)
	now := time.Now().UTC()

	t.Run("successful update", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectExec(`UPDATE session_tokens SET last_used_at = \$2, updated_at = \$2`).
			WithArgs(session.ID.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		repo := NewSessionTokenRepository(mock)
		require.NoError(t, repo.UpdateLastUsed(context.Background(), session.ID, now))
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("zero rows means not found", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectExec(`UPDATE session_tokens SET last_used_at = \$2, updated_at = \$2`).
			WithArgs(session.ID.String(), now).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		repo := NewSessionTokenRepository(mock)
		err = repo.UpdateLastUsed(context.Background(), session.ID, now)
		require.Error(t, err)
		assert.ErrorIs(t, err, identity.ErrNotFound)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestSessionTokenRepository_DeleteByToken(t *testing.T) {
	session := testSessionToken(t)

	t.Run("delete is idempotent", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		// Zero rows deleted is still success.
		mock.ExpectExec(`DELETE FROM session_tokens WHERE token = \$1`).
			WithArgs(session.Token).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		repo := NewSessionTokenRepository(mock)
		require.NoError(t, repo.DeleteByToken(context.Background(), session.Token))
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err, "failed to create mock")
		defer mock.Close()

		mock.ExpectExec(`DELETE FROM session_tokens WHERE token = \$1`).
			WithArgs(session.Token).
			WillReturnError(errors.New("disk full"))

		repo := NewSessionTokenRepository(mock)
		err = repo.DeleteByToken(context.Background(), session.Token)
		require.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
	})
}

func TestSessionTokenRepository_DeleteByPrincipal(t *testing.T) {
	session := testSessionToken(t)

	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM session_tokens WHERE principal_id = \$1`).
		WithArgs(session.PrincipalID.String()).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	repo := NewSessionTokenRepository(mock)
	require.NoError(t, repo.DeleteByPrincipal(context.Background(), session.PrincipalID))
	assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
}

func TestSessionTokenRepository_DeleteExpired(t *testing.T) {
	now := time.Now().UTC()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	defer mock.Close()

	// NULL expiry rows must survive the sweep.
	mock.ExpectExec(`DELETE FROM session_tokens WHERE expires_at IS NOT NULL AND expires_at < \$1`).
		WithArgs(now).
		WillReturnResult(pgxmock.NewResult("DELETE", 5))

	repo := NewSessionTokenRepository(mock)
	count, err := repo.DeleteExpired(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
	assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
}

func TestSessionTokenRepository_DeleteWithoutExpiry(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err, "failed to create mock")
	defer mock.Close()

	mock.ExpectExec(`DELETE FROM session_tokens WHERE expires_at IS NULL`).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	repo := NewSessionTokenRepository(mock)
	count, err := repo.DeleteWithoutExpiry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
	assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
}

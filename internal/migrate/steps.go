// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package migrate

// Steps returns the ordered schema history for the identity core.
// Append only: existing names must never change once released.
func Steps() []NamedStep {
	return []NamedStep{
		SQLStep("001_create_principals", `
			CREATE TABLE IF NOT EXISTS principals (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL,
				name TEXT NOT NULL DEFAULT '',
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'user',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				external_id TEXT,
				avatar_url TEXT,
				failed_attempts INTEGER NOT NULL DEFAULT 0,
				locked_until TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`),
		SQLStep("002_principals_email_unique", `
			CREATE UNIQUE INDEX IF NOT EXISTS principals_email_key
				ON principals (LOWER(email))`),
		SQLStep("003_principals_external_id_unique", `
			CREATE UNIQUE INDEX IF NOT EXISTS principals_external_id_key
				ON principals (external_id) WHERE external_id IS NOT NULL`),
		SQLStep("004_create_session_tokens", `
			CREATE TABLE IF NOT EXISTS session_tokens (
				id TEXT PRIMARY KEY,
				principal_id TEXT NOT NULL REFERENCES principals(id) ON DELETE CASCADE,
				label TEXT NOT NULL DEFAULT '',
				token TEXT NOT NULL UNIQUE,
				last_used_at TIMESTAMPTZ,
				expires_at TIMESTAMPTZ,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL
			)`),
		SQLStep("005_session_tokens_principal_idx", `
			CREATE INDEX IF NOT EXISTS session_tokens_principal_idx
				ON session_tokens (principal_id)`),
		SQLStep("006_create_password_resets", `
			CREATE TABLE IF NOT EXISTS password_resets (
				id TEXT PRIMARY KEY,
				email TEXT NOT NULL,
				token_hash TEXT NOT NULL UNIQUE,
				created_at TIMESTAMPTZ NOT NULL
			)`),
		SQLStep("007_password_resets_email_idx", `
			CREATE INDEX IF NOT EXISTS password_resets_email_idx
				ON password_resets (LOWER(email))`),
	}
}

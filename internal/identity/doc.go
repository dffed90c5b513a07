// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package identity provides the credential and session lifecycle core.
//
// # Domain Types
//
// Domain types (Principal, SessionToken, PasswordResetRecord) should be
// created through their constructors:
//   - NewPrincipal - creates a Principal with a validated email and hash
//   - NewSessionToken - creates a SessionToken bound to a principal
//   - NewPasswordResetRecord - creates a reset record with a hashed token
//
// Direct struct initialization bypasses validation and may create invalid
// state. Repository implementations receive pre-validated types from these
// constructors.
//
// # Services
//
// Service types coordinate domain operations:
//   - CredentialService - registration, authentication, profile updates
//   - SessionService - bearer token issue/validate/revoke/sweep
//   - PasswordResetService - one-time reset token flow
//   - LinkingService - external (OAuth) identity resolution
//
// Services are created with New*Service constructors that validate
// dependencies. The relational store is the single source of truth; no
// service holds mutable shared state between calls.
package identity

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import "errors"

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a uniqueness constraint is violated
// (duplicate email, external id, or token value).
var ErrConflict = errors.New("conflict")

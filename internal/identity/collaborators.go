// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"crypto/rand"
	"time"

	"github.com/samber/oops"
)

// Clock supplies the current time. Services never call time.Now directly
// on paths where expiry arithmetic matters, so tests can pin time.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock with the wall clock.
type SystemClock struct{}

// Now returns the current wall-clock time.
func (SystemClock) Now() time.Time { return time.Now() }

// RandomSource supplies cryptographically secure random bytes.
type RandomSource interface {
	// Bytes returns n random bytes or an error if entropy is unavailable.
	Bytes(n int) ([]byte, error)
}

// CryptoRandomSource implements RandomSource with crypto/rand.
type CryptoRandomSource struct{}

// Bytes returns n bytes from the system CSPRNG.
func (CryptoRandomSource) Bytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, oops.Code("RANDOM_SOURCE_FAILED").
			With("requested_bytes", n).
			Wrap(err)
	}
	return b, nil
}

// Mailer delivers transactional email. Implementations live outside the
// core; delivery failures on the reset path are logged and swallowed.
type Mailer interface {
	Send(ctx context.Context, to, subject, textBody, htmlBody string) error
}

// Transactor runs a function inside a single store transaction. Repository
// methods invoked through the callback's context participate in that
// transaction.
type Transactor interface {
	InTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

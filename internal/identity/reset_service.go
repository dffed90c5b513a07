// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/samber/oops"
)

// errResetAlreadyRedeemed aborts a redeem transaction when a concurrent
// consumer deleted the reset records first. Mapped to (false, nil).
var errResetAlreadyRedeemed = errors.New("reset records already redeemed")

// ResetConfig configures the password reset flow.
type ResetConfig struct {
	// Window is how long a reset token stays valid after creation.
	// Zero falls back to DefaultResetWindow.
	Window time.Duration

	// LinkBaseURL is the page the reset email points at. The raw token
	// and email are appended as query parameters.
	LinkBaseURL string
}

func (c ResetConfig) window() time.Duration {
	if c.Window <= 0 {
		return DefaultResetWindow
	}
	return c.Window
}

// PasswordResetService runs the one-time reset token flow.
type PasswordResetService struct {
	principals PrincipalRepository
	resets     PasswordResetRepository
	hasher     PasswordHasher
	mailer     Mailer
	clock      Clock
	random     RandomSource
	tx         Transactor
	cfg        ResetConfig
	logger     *slog.Logger
}

// NewPasswordResetService creates a PasswordResetService.
func NewPasswordResetService(
	principals PrincipalRepository,
	resets PasswordResetRepository,
	hasher PasswordHasher,
	mailer Mailer,
	clock Clock,
	random RandomSource,
	tx Transactor,
	cfg ResetConfig,
	logger *slog.Logger,
) (*PasswordResetService, error) {
	if principals == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("principals repository is required")
	}
	if resets == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("resets repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("password hasher is required")
	}
	if mailer == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("mailer is required")
	}
	if clock == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("clock is required")
	}
	if random == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("random source is required")
	}
	if tx == nil {
		return nil, oops.Code("CONFIG_INVALID").Errorf("transactor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PasswordResetService{
		principals: principals,
		resets:     resets,
		hasher:     hasher,
		mailer:     mailer,
		clock:      clock,
		random:     random,
		tx:         tx,
		cfg:        cfg,
		logger:     logger,
	}, nil
}

// RequestReset starts a reset cycle for an email address.
// An unknown email returns success with no side effects; callers must not
// branch on that outcome (enumeration resistance). A mail delivery failure
// is logged and swallowed: the record exists, so the request succeeded.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	principal, err := s.principals.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}

	token, err := GenerateResetToken(s.random)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "generate reset token").
			Wrap(err)
	}

	// Same adaptive hash as passwords: a leaked resets table is as hard
	// to reverse as the credentials table.
	hash, err := s.hasher.Hash(token)
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "hash reset token").
			Wrap(err)
	}

	record, err := NewPasswordResetRecord(principal.Email, hash, s.clock.Now())
	if err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "create reset record").
			Wrap(err)
	}

	if err := s.resets.Create(ctx, record); err != nil {
		return oops.Code("RESET_REQUEST_FAILED").
			With("operation", "persist reset record").
			Wrap(err)
	}

	subject, textBody, htmlBody := s.composeResetMail(principal, token)
	if err := s.mailer.Send(ctx, principal.Email, subject, textBody, htmlBody); err != nil {
		s.logger.Error("reset mail delivery failed",
			"principal_id", principal.ID.String(),
			"error", err)
	}

	return nil
}

// Consume redeems a raw reset token for an email and sets a new password.
// Returns (true, nil) on success. A wrong token, an unknown email, or a
// token past the window all return (false, nil); the expired record is
// deleted on the spot. The password update and the deletion of every
// sibling record commit in one transaction, so a concurrent Consume with
// the same token finds zero records and returns false.
func (s *PasswordResetService) Consume(ctx context.Context, rawToken, email, newPassword string) (bool, error) {
	if rawToken == "" || newPassword == "" {
		return false, nil
	}

	records, err := s.resets.GetByEmail(ctx, email)
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "get reset records").
			Wrap(err)
	}

	now := s.clock.Now()
	for _, record := range records {
		match, err := s.hasher.Verify(rawToken, record.TokenHash)
		if err != nil {
			return false, oops.Code("RESET_CONSUME_FAILED").
				With("operation", "verify reset token").
				Wrap(err)
		}
		if !match {
			continue
		}

		if record.IsExpiredAt(now, s.cfg.window()) {
			if err := s.resets.Delete(ctx, record.ID); err != nil && !errors.Is(err, ErrNotFound) {
				s.logger.Warn("expired reset record cleanup failed",
					"record_id", record.ID.String(),
					"error", err)
			}
			return false, nil
		}

		return s.redeem(ctx, record, newPassword)
	}

	return false, nil
}

// redeem updates the principal's password and invalidates every reset
// record for the email inside a single transaction.
func (s *PasswordResetService) redeem(ctx context.Context, record *PasswordResetRecord, newPassword string) (bool, error) {
	principal, err := s.principals.GetByEmail(ctx, record.Email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// Account vanished between request and consume.
			return false, nil
		}
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "get principal by email").
			Wrap(err)
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "hash new password").
			Wrap(err)
	}

	// Delete before updating the password. The delete takes the row
	// locks, so of two concurrent redeems one blocks until the other
	// commits and then sees zero rows: only one wins the token.
	err = s.tx.InTransaction(ctx, func(ctx context.Context) error {
		deleted, err := s.resets.DeleteByEmail(ctx, record.Email)
		if err != nil {
			return err
		}
		if deleted == 0 {
			return errResetAlreadyRedeemed
		}
		return s.principals.UpdatePassword(ctx, principal.ID, hash)
	})
	if errors.Is(err, errResetAlreadyRedeemed) {
		return false, nil
	}
	if err != nil {
		return false, oops.Code("RESET_CONSUME_FAILED").
			With("operation", "redeem reset token").
			With("principal_id", principal.ID.String()).
			Wrap(err)
	}

	return true, nil
}

// SweepExpired deletes all reset records older than the window. Invoked
// by an external scheduler, independent of Consume.
func (s *PasswordResetService) SweepExpired(ctx context.Context, window time.Duration) (int64, error) {
	if window <= 0 {
		window = s.cfg.window()
	}
	count, err := s.resets.DeleteOlderThan(ctx, s.clock.Now().Add(-window))
	if err != nil {
		return 0, oops.Code("RESET_SWEEP_FAILED").
			With("operation", "delete old reset records").
			Wrap(err)
	}
	return count, nil
}

// composeResetMail builds the reset email. The raw token only ever
// appears here and in the caller's response to the mail provider.
func (s *PasswordResetService) composeResetMail(principal *Principal, token string) (subject, textBody, htmlBody string) {
	link := s.cfg.LinkBaseURL
	if link == "" {
		link = "/reset-password"
	}
	link = fmt.Sprintf("%s?token=%s&email=%s", link, url.QueryEscape(token), url.QueryEscape(principal.Email))

	window := s.cfg.window()
	subject = "Reset your password"
	textBody = fmt.Sprintf(
		"Hello %s,\n\nA password reset was requested for your account. "+
			"Open the link below within %s to choose a new password:\n\n%s\n\n"+
			"If you did not request this, you can ignore this message.\n",
		principal.DisplayName, window, link)
	htmlBody = fmt.Sprintf(
		`<p>Hello %s,</p><p>A password reset was requested for your account. `+
			`<a href="%s">Choose a new password</a> within %s.</p>`+
			`<p>If you did not request this, you can ignore this message.</p>`,
		principal.DisplayName, link, window)
	return subject, textBody, htmlBody
}

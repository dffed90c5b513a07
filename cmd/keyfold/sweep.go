// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/identity"
	idpg "github.com/keyfold/keyfold/internal/identity/postgres"
	"github.com/keyfold/keyfold/internal/mail"
)

// NewSweepCmd creates the sweep subcommand.
func NewSweepCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired session tokens and stale reset records",
		Long: `Delete session tokens whose expiry has passed and password reset
records older than the reset window. Tokens without an expiry are kept
unless purging is enabled in the configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSweep(cmd, nil)
		},
	}
	return cmd
}

func runSweep(cmd *cobra.Command, deps *Deps) error {
	if deps == nil {
		deps = &Deps{}
	}
	deps.defaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx := cmd.Context()

	pool, err := connect(ctx, deps, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	principals := idpg.NewPrincipalRepository(pool)
	tokens := idpg.NewSessionTokenRepository(pool)
	resets := idpg.NewPasswordResetRepository(pool)
	hasher := identity.NewArgon2idHasher()
	clock := identity.SystemClock{}
	random := identity.CryptoRandomSource{}

	sessions, err := identity.NewSessionService(principals, tokens, clock, random, slog.Default())
	if err != nil {
		return err
	}

	resetSvc, err := identity.NewPasswordResetService(
		principals, resets, hasher, mail.NewLogMailer(slog.Default()),
		clock, random, idpg.NewTransactor(pool),
		cfg.ResetServiceConfig(), slog.Default())
	if err != nil {
		return err
	}

	result, err := sessions.Sweep(ctx, identity.SweepConfig{
		PurgeNoExpiry: cfg.Session.PurgeNoExpiry,
	})
	if err != nil {
		return err
	}

	staleResets, err := resetSvc.SweepExpired(ctx, cfg.ResetServiceConfig().Window)
	if err != nil {
		return err
	}

	cmd.Printf("Swept %d expired tokens, %d no-expiry tokens, %d stale reset records\n",
		result.ExpiredCount, result.NoExpiryCount, staleResets)
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/keyfold/keyfold/internal/config"
	"github.com/keyfold/keyfold/internal/identity"
	idpg "github.com/keyfold/keyfold/internal/identity/postgres"
	"github.com/keyfold/keyfold/internal/mail"
	"github.com/keyfold/keyfold/internal/migrate"
	"github.com/keyfold/keyfold/internal/observability"
	"github.com/keyfold/keyfold/pkg/errutil"
)

// serveOptions holds flags specific to the serve subcommand.
type serveOptions struct {
	autoMigrate   bool
	sweepInterval time.Duration
}

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the identity service",
		Long: `Run the long-lived identity service: observability endpoints,
schema readiness probes, and the periodic token sweeper.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts, nil)
		},
	}

	cmd.Flags().BoolVar(&opts.autoMigrate, "auto-migrate", false, "apply pending migrations on startup")
	cmd.Flags().DurationVar(&opts.sweepInterval, "sweep-interval", time.Hour, "interval between token sweeps (0 = disabled)")

	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions, deps *Deps) error {
	if deps == nil {
		deps = &Deps{}
	}
	deps.defaults()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	setupLogging(cfg)

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	slog.Info("starting identity service",
		"metrics_addr", cfg.MetricsAddr,
		"log_format", cfg.LogFormat,
	)

	pool, err := connect(ctx, deps, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	slog.Info("connected to database")

	// Readiness follows the deployed schema, not just connectivity.
	inspector := migrate.NewSchemaInspector(pool, nil)

	var obsServer *observability.Server
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, func() bool {
			probeCtx, probeCancel := context.WithTimeout(ctx, 5*time.Second)
			defer probeCancel()
			return inspector.CheckSchemaReady(probeCtx)
		})
		obsErrChan, startErr := obsServer.Start()
		if startErr != nil {
			return startErr
		}
		go func() {
			if serveErr, ok := <-obsErrChan; ok && serveErr != nil {
				errutil.LogError(slog.Default(), "observability server failed", serveErr)
				cancel()
			}
		}()
		defer func() {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			if stopErr := obsServer.Stop(stopCtx); stopErr != nil {
				slog.Warn("failed to stop observability server", "error", stopErr)
			}
		}()
		slog.Info("observability server started", "addr", obsServer.Addr())
	}

	if opts.autoMigrate {
		migrator, merr := migrate.NewMigrator(pool, nil)
		if merr != nil {
			return merr
		}
		applied, merr := migrator.Apply(ctx, migrate.Steps())
		if merr != nil {
			return merr
		}
		if obsServer != nil {
			obsServer.Metrics().MigrationsApplied.Add(float64(applied))
		}
		slog.Info("migrations applied", "count", applied)
	}

	mailer, err := buildMailer(cfg.Mail)
	if err != nil {
		return err
	}

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
		principals, resets, hasher, mailer,
		clock, random, idpg.NewTransactor(pool),
		cfg.ResetServiceConfig(), slog.Default())
	if err != nil {
		return err
	}

	if opts.sweepInterval > 0 {
		go runSweepLoop(ctx, opts.sweepInterval, cfg, sessions, resetSvc, obsServer)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("Identity service started")

	select {
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig)
	case <-ctx.Done():
		slog.Info("context cancelled, shutting down")
	}

	return nil
}

// buildMailer constructs the configured mailer implementation.
func buildMailer(cfg config.MailConfig) (identity.Mailer, error) {
	if cfg.Mode == "smtp" {
		return mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.Host,
			Port:     cfg.Port,
			From:     cfg.From,
			Username: cfg.Username,
			Password: cfg.Password,
		})
	}
	return mail.NewLogMailer(slog.Default()), nil
}

// runSweepLoop deletes expired tokens and stale reset records on a timer.
func runSweepLoop(
	ctx context.Context,
	interval time.Duration,
	cfg config.Config,
	sessions *identity.SessionService,
	resetSvc *identity.PasswordResetService,
	obsServer *observability.Server,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		result, err := sessions.Sweep(ctx, identity.SweepConfig{
			PurgeNoExpiry: cfg.Session.PurgeNoExpiry,
		})
		if err != nil {
			errutil.LogWarn(slog.Default(), "session sweep failed", err)
		} else if obsServer != nil {
			obsServer.Metrics().TokensSweptTotal.WithLabelValues("expired").Add(float64(result.ExpiredCount))
			obsServer.Metrics().TokensSweptTotal.WithLabelValues("no_expiry").Add(float64(result.NoExpiryCount))
		}

		stale, err := resetSvc.SweepExpired(ctx, cfg.ResetServiceConfig().Window)
		if err != nil {
			errutil.LogWarn(slog.Default(), "reset sweep failed", err)
		} else if obsServer != nil {
			obsServer.Metrics().TokensSweptTotal.WithLabelValues("reset_stale").Add(float64(stale))
		}
	}
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Keyfold Contributors

// Package config loads the immutable runtime configuration.
//
// Precedence, lowest to highest: built-in defaults, YAML config file,
// command-line flags. The resulting Config value is constructed once at
// startup and passed into component constructors; nothing reads ambient
// global state afterwards.
package config

import (
	"os"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/keyfold/keyfold/internal/identity"
)

// Config is the full runtime configuration.
type Config struct {
	DatabaseURL string `koanf:"database_url"`
	LogFormat   string `koanf:"log_format"`
	MetricsAddr string `koanf:"metrics_addr"`

	Password PasswordConfig `koanf:"password"`
	Session  SessionConfig  `koanf:"session"`
	Reset    ResetConfig    `koanf:"reset"`
	Linking  LinkingConfig  `koanf:"linking"`
	Mail     MailConfig     `koanf:"mail"`

	// AllowHardDelete enables physical principal deletion. Soft delete
	// via the active flag is the default.
	AllowHardDelete bool `koanf:"allow_hard_delete"`
}

// PasswordConfig mirrors identity.PasswordPolicy.
type PasswordConfig struct {
	MinLength      int  `koanf:"min_length"`
	RequireUpper   bool `koanf:"require_upper"`
	RequireLower   bool `koanf:"require_lower"`
	RequireDigit   bool `koanf:"require_digit"`
	RequireSpecial bool `koanf:"require_special"`
	DenyCommon     bool `koanf:"deny_common"`
}

// SessionConfig controls bearer token lifetimes and sweeping.
// Zero expiry values mean tokens are issued without an expiry; that is a
// deliberate legacy opt-in, not a recommended setting.
type SessionConfig struct {
	TokenExpirationMinutes int  `koanf:"token_expiration_minutes"`
	RememberMeDays         int  `koanf:"remember_me_days"`
	PurgeNoExpiry          bool `koanf:"purge_no_expiry"`
}

// ResetConfig controls the password reset flow.
type ResetConfig struct {
	WindowMinutes int    `koanf:"window_minutes"`
	LinkBaseURL   string `koanf:"link_base_url"`
}

// LinkingConfig controls external identity resolution.
type LinkingConfig struct {
	AllowAutoProvision bool `koanf:"allow_auto_provision"`
}

// MailConfig selects and configures the mailer. Mode is "log" or "smtp".
type MailConfig struct {
	Mode     string `koanf:"mode"`
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	From     string `koanf:"from"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
}

// Default returns the built-in defaults.
func Default() Config {
	return Config{
		LogFormat:   "json",
		MetricsAddr: "127.0.0.1:9100",
		Password: PasswordConfig{
			MinLength:      8,
			RequireUpper:   true,
			RequireLower:   true,
			RequireDigit:   true,
			RequireSpecial: true,
			DenyCommon:     true,
		},
		Session: SessionConfig{
			TokenExpirationMinutes: 1440,
			RememberMeDays:         30,
		},
		Reset: ResetConfig{
			WindowMinutes: 60,
			LinkBaseURL:   "/reset-password",
		},
		Mail: MailConfig{
			Mode: "log",
			Port: 587,
		},
	}
}

// Load builds a Config from defaults, an optional YAML file, and flags.
func Load(configFile string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").
				With("file", configFile).
				Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, oops.Code("CONFIG_INVALID").
				With("operation", "load flags").
				Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, oops.Code("CONFIG_INVALID").
			With("operation", "unmarshal config").
			Wrap(err)
	}

	// Deployment convenience: the database URL may arrive via the
	// conventional environment variable instead of file or flag.
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects configurations that would fail at first use. Missing
// mail credentials are fatal here, at startup, not per-request.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database_url is required")
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		return oops.Code("CONFIG_INVALID").
			Errorf("log_format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if c.Password.MinLength < 1 {
		return oops.Code("CONFIG_INVALID").Errorf("password.min_length must be at least 1")
	}
	switch c.Mail.Mode {
	case "log":
	case "smtp":
		if c.Mail.Host == "" || c.Mail.From == "" {
			return oops.Code("CONFIG_INVALID").
				Errorf("mail.host and mail.from are required when mail.mode is smtp")
		}
	default:
		return oops.Code("CONFIG_INVALID").
			Errorf("mail.mode must be 'log' or 'smtp', got %q", c.Mail.Mode)
	}
	return nil
}

// PasswordPolicy converts the password section into the domain policy.
func (c Config) PasswordPolicy() identity.PasswordPolicy {
	return identity.PasswordPolicy{
		MinLength:      c.Password.MinLength,
		RequireUpper:   c.Password.RequireUpper,
		RequireLower:   c.Password.RequireLower,
		RequireDigit:   c.Password.RequireDigit,
		RequireSpecial: c.Password.RequireSpecial,
		DenyCommon:     c.Password.DenyCommon,
	}
}

// ExpiryConfig converts the session section into the domain expiry config.
func (c Config) ExpiryConfig() identity.ExpiryConfig {
	return identity.ExpiryConfig{
		TokenExpirationMinutes: c.Session.TokenExpirationMinutes,
		RememberMeDays:         c.Session.RememberMeDays,
	}
}

// ResetServiceConfig converts the reset section into the domain config.
func (c Config) ResetServiceConfig() identity.ResetConfig {
	return identity.ResetConfig{
		Window:      time.Duration(c.Reset.WindowMinutes) * time.Minute,
		LinkBaseURL: c.Reset.LinkBaseURL,
	}
}

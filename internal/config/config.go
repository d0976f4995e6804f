// Package config loads process configuration from environment variables.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is read once at startup and injected into constructors; nothing in
// the core reads the environment after that.
type Config struct {
	Addr        string `env:"ADDR" envDefault:":8080"`
	DatabaseDSN string `env:"DATABASE_DSN,required"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	JWTSecret string        `env:"JWT_SECRET,required"`
	AccessTTL time.Duration `env:"ACCESS_TTL" envDefault:"1h"`

	// RefreshTTL is the single source of truth for refresh token lifetime:
	// both the stored row and the cookie Max-Age derive from it.
	RefreshTTL time.Duration `env:"REFRESH_TTL" envDefault:"168h"`

	Pepper       string `env:"PASSWORD_PEPPER,required"`
	CookieDomain string `env:"COOKIE_DOMAIN"`

	// BlockedEmailDomains is the disposable email denylist for registration.
	BlockedEmailDomains []string `env:"BLOCKED_EMAIL_DOMAINS" envSeparator:","`

	// Login rate limiting.
	LoginWindow   time.Duration `env:"LOGIN_WINDOW" envDefault:"15m"`
	LoginMaxFails int           `env:"LOGIN_MAX_FAILS" envDefault:"5"`
	LoginBlockFor time.Duration `env:"LOGIN_BLOCK_FOR" envDefault:"15m"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}

// Production reports whether secure cookie attributes should be enforced.
func (c *Config) Production() bool { return c.Environment == "production" }

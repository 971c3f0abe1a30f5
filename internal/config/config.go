// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the service configuration loaded from environment variables.
type Config struct {
	DBPath     string `env:"WA_DB_PATH" envDefault:"./data/webanalytics.db"`
	ServerHost string `env:"WA_SERVER_HOST" envDefault:"localhost"`
	ServerPort int    `env:"WA_SERVER_PORT" envDefault:"8080"`
	Env        string `env:"WA_ENV" envDefault:"development"`
	LogLevel   string `env:"WA_LOG_LEVEL" envDefault:"info"`

	// WWWRoot is the canonical URL of the tracked site. Auto-provisioning
	// reconciles remote site registrations against it.
	WWWRoot string `env:"WA_WWWROOT,required"`
	// SiteName is the display name registered with remote analytics APIs.
	SiteName string `env:"WA_SITE_NAME" envDefault:"Web Analytics"`

	// Cache configuration. RedisURL is optional; without it the markup
	// cache stays in-memory. TTL is in seconds.
	RedisURL     string `env:"WA_REDIS_URL"`
	CachePrefix  string `env:"WA_CACHE_PREFIX" envDefault:"wa:"`
	CacheTTLSecs int    `env:"WA_CACHE_TTL" envDefault:"300"`

	// SweepSchedule is the cron spec for the periodic auto-provision sweep.
	SweepSchedule string `env:"WA_SWEEP_SCHEDULE" envDefault:"*/15 * * * *"`

	// Matomo auto-provisioning configuration. SiteURL is the instance
	// address (scheme optional), APIToken is the SitesManager token_auth.
	MatomoSiteURL           string `env:"WA_MATOMO_SITEURL"`
	MatomoAPIToken          string `env:"WA_MATOMO_APITOKEN"`
	MatomoDefaultAutoUpdate bool   `env:"WA_MATOMO_DEFAULT_AUTOUPDATE" envDefault:"true"`
	MatomoTimezone          string `env:"WA_MATOMO_TIMEZONE" envDefault:"UTC"`
	MatomoCurrency          string `env:"WA_MATOMO_CURRENCY" envDefault:"GBP"`
}

// IsDevelopment returns true if the service runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedisCache returns true if Redis caching is configured.
func (c Config) UseRedisCache() bool {
	return c.RedisURL != ""
}

// MatomoProvisionEnabled returns true if Matomo auto-provisioning is
// configured: it needs both the instance URL and an API token.
func (c Config) MatomoProvisionEnabled() bool {
	return c.MatomoSiteURL != "" && c.MatomoAPIToken != ""
}

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.WWWRoot = strings.TrimRight(cfg.WWWRoot, "/")
	if !strings.HasPrefix(cfg.WWWRoot, "http://") && !strings.HasPrefix(cfg.WWWRoot, "https://") {
		return nil, fmt.Errorf("WA_WWWROOT must include a scheme, got %q", cfg.WWWRoot)
	}

	if cfg.MatomoSiteURL != "" && strings.HasSuffix(cfg.MatomoSiteURL, "/") {
		cfg.MatomoSiteURL = strings.TrimRight(cfg.MatomoSiteURL, "/")
	}

	return cfg, nil
}

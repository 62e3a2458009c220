// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"time"

	"github.com/spf13/viper"

	"github.com/meridian-trading/authcore/internal/session/domain"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// DatabaseURL is the Postgres DSN for the authority store.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// RedisAddr is the redis host:port for sessions, revocation, replay markers, and rate limits.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the redis AUTH password; empty for no auth.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the redis logical database number.
	RedisDB int `mapstructure:"REDIS_DB"`

	// JWTPrivateKey is the PEM-encoded RSA private key or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded RSA public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim stamped on every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim stamped on every token.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "4h"); also the session record TTL.
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// JWTServiceTTL is the single-use service token lifetime (e.g. "5m").
	JWTServiceTTL string `mapstructure:"JWT_SERVICE_TTL"`
	// JWTLeeway is the clock-skew tolerance for time claims (e.g. "30s").
	JWTLeeway string `mapstructure:"JWT_LEEWAY"`

	// SessionLimit is the per-user concurrent-session cap; oldest sessions are evicted past it.
	SessionLimit int `mapstructure:"SESSION_LIMIT"`
	// SessionBinding is the ip/user-agent binding policy: "strict" or "relaxed".
	SessionBinding string `mapstructure:"SESSION_BINDING"`

	// CreateLimit is the max session creations per ip per CreateWindow.
	CreateLimit int `mapstructure:"RATE_CREATE_LIMIT"`
	// CreateWindow is the sliding window for session creation (e.g. "15m").
	CreateWindow string `mapstructure:"RATE_CREATE_WINDOW"`
	// RefreshLimit is the max refreshes per ip per RefreshWindow.
	RefreshLimit int `mapstructure:"RATE_REFRESH_LIMIT"`
	// RefreshWindow is the sliding window for refresh (e.g. "15m").
	RefreshWindow string `mapstructure:"RATE_REFRESH_WINDOW"`

	// CookieDomain is the Domain attribute on the refresh cookie; empty for host-only.
	CookieDomain string `mapstructure:"COOKIE_DOMAIN"`
	// CookiePath is the Path attribute on the refresh cookie.
	CookiePath string `mapstructure:"COOKIE_PATH"`
	// CookieSameSite is the SameSite attribute: "Strict" or "Lax".
	CookieSameSite string `mapstructure:"COOKIE_SAMESITE"`

	// GatewayFallbackUser, when set, enables the log-only gateway mode: calls
	// asserting no identity at all authenticate as this user id. Must not be
	// set when Env is production (startup error).
	GatewayFallbackUser string `mapstructure:"GATEWAY_FALLBACK_USER"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
	// LogLevel is the zerolog level (e.g. "debug", "info", "warn").
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_ISSUER", "authcore")
	v.SetDefault("JWT_AUDIENCE", "meridian-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "4h")
	v.SetDefault("JWT_SERVICE_TTL", "5m")
	v.SetDefault("JWT_LEEWAY", "30s")
	v.SetDefault("SESSION_LIMIT", 3)
	v.SetDefault("SESSION_BINDING", "strict")
	v.SetDefault("RATE_CREATE_LIMIT", 5)
	v.SetDefault("RATE_CREATE_WINDOW", "15m")
	v.SetDefault("RATE_REFRESH_LIMIT", 30)
	v.SetDefault("RATE_REFRESH_WINDOW", "15m")
	v.SetDefault("COOKIE_DOMAIN", "")
	v.SetDefault("COOKIE_PATH", "/")
	v.SetDefault("COOKIE_SAMESITE", "Strict")
	v.SetDefault("GATEWAY_FALLBACK_USER", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.RedisAddr == "" {
		return nil, errors.New("config: REDIS_ADDR must be set")
	}
	if cfg.SessionLimit <= 0 {
		return nil, errors.New("config: SESSION_LIMIT must be positive")
	}
	switch cfg.SessionBinding {
	case "strict", "relaxed":
	default:
		return nil, errors.New("config: SESSION_BINDING must be strict or relaxed")
	}
	switch cfg.CookieSameSite {
	case "Strict", "Lax":
	default:
		return nil, errors.New("config: COOKIE_SAMESITE must be Strict or Lax")
	}
	if cfg.GatewayFallbackUser != "" && cfg.Env == "production" {
		return nil, errors.New("config: GATEWAY_FALLBACK_USER must not be set when APP_ENV=production")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return c.duration(c.JWTAccessTTL, 15*time.Minute)
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 4h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	return c.duration(c.JWTRefreshTTL, 4*time.Hour)
}

// ServiceTTL parses JWTServiceTTL as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) ServiceTTL() time.Duration {
	return c.duration(c.JWTServiceTTL, 5*time.Minute)
}

// Leeway parses JWTLeeway as a time.Duration. Returns 30s if unset or invalid.
func (c *Config) Leeway() time.Duration {
	return c.duration(c.JWTLeeway, 30*time.Second)
}

// CreateRateWindow parses CreateWindow. Returns 15m if unset or invalid.
func (c *Config) CreateRateWindow() time.Duration {
	return c.duration(c.CreateWindow, 15*time.Minute)
}

// RefreshRateWindow parses RefreshWindow. Returns 15m if unset or invalid.
func (c *Config) RefreshRateWindow() time.Duration {
	return c.duration(c.RefreshWindow, 15*time.Minute)
}

// BindingMode returns the configured session binding policy.
func (c *Config) BindingMode() domain.BindingMode {
	if c.SessionBinding == "relaxed" {
		return domain.BindingRelaxed
	}
	return domain.BindingStrict
}

// CookieParams returns the browser cookie policy built from config.
func (c *Config) CookieParams() domain.CookieParams {
	return domain.CookieParams{
		Secure:   true,
		HTTPOnly: true,
		SameSite: c.CookieSameSite,
		Domain:   c.CookieDomain,
		Path:     c.CookiePath,
		MaxAge:   c.RefreshTTL(),
	}
}

func (c *Config) duration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

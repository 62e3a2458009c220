package config

import (
	"os"
	"testing"
	"time"

	"github.com/meridian-trading/authcore/internal/session/domain"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr != "localhost:6379" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.SessionLimit != 3 {
		t.Errorf("SessionLimit = %d, want 3", cfg.SessionLimit)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v, want 15m", cfg.AccessTTL())
	}
	if cfg.RefreshTTL() != 4*time.Hour {
		t.Errorf("RefreshTTL = %v, want 4h", cfg.RefreshTTL())
	}
	if cfg.ServiceTTL() != 5*time.Minute {
		t.Errorf("ServiceTTL = %v, want 5m", cfg.ServiceTTL())
	}
	if cfg.Leeway() != 30*time.Second {
		t.Errorf("Leeway = %v, want 30s", cfg.Leeway())
	}
	if cfg.BindingMode() != domain.BindingStrict {
		t.Errorf("BindingMode = %q, want strict", cfg.BindingMode())
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("REDIS_ADDR", "redis.internal:6380")
	t.Setenv("JWT_ACCESS_TTL", "5m")
	t.Setenv("SESSION_LIMIT", "10")
	t.Setenv("SESSION_BINDING", "relaxed")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedisAddr != "redis.internal:6380" {
		t.Errorf("RedisAddr = %q", cfg.RedisAddr)
	}
	if cfg.AccessTTL() != 5*time.Minute {
		t.Errorf("AccessTTL = %v, want 5m", cfg.AccessTTL())
	}
	if cfg.SessionLimit != 10 {
		t.Errorf("SessionLimit = %d, want 10", cfg.SessionLimit)
	}
	if cfg.BindingMode() != domain.BindingRelaxed {
		t.Errorf("BindingMode = %q, want relaxed", cfg.BindingMode())
	}
}

func TestLoad_InvalidBinding(t *testing.T) {
	os.Clearenv()
	t.Setenv("SESSION_BINDING", "loose")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for invalid SESSION_BINDING")
	}
}

func TestLoad_FallbackUserRejectedInProduction(t *testing.T) {
	os.Clearenv()
	t.Setenv("GATEWAY_FALLBACK_USER", "system")
	t.Setenv("APP_ENV", "production")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for fallback identity in production")
	}
}

func TestLoad_InvalidDurationFallsBack(t *testing.T) {
	os.Clearenv()
	t.Setenv("JWT_REFRESH_TTL", "not-a-duration")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RefreshTTL() != 4*time.Hour {
		t.Errorf("RefreshTTL = %v, want 4h fallback", cfg.RefreshTTL())
	}
}

func TestCookieParams(t *testing.T) {
	os.Clearenv()
	t.Setenv("COOKIE_DOMAIN", "trade.meridian.example")
	t.Setenv("COOKIE_SAMESITE", "Lax")
	t.Setenv("JWT_REFRESH_TTL", "2h")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	params := cfg.CookieParams()
	if !params.Secure || !params.HTTPOnly {
		t.Error("cookie must be Secure and HTTPOnly")
	}
	if params.Domain != "trade.meridian.example" {
		t.Errorf("Domain = %q", params.Domain)
	}
	if params.SameSite != "Lax" {
		t.Errorf("SameSite = %q, want Lax", params.SameSite)
	}
	if params.MaxAge != 2*time.Hour {
		t.Errorf("MaxAge = %v, want 2h", params.MaxAge)
	}
}

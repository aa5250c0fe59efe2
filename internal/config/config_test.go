package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.Dispatch.MaxAttempts != 3 {
		t.Errorf("max attempts default = %d, want 3", cfg.Dispatch.MaxAttempts)
	}
	if cfg.Dispatch.SendTimeout() != 30*time.Second {
		t.Errorf("send timeout default = %v", cfg.Dispatch.SendTimeout())
	}
	if cfg.DKIM.HeaderCanon != "relaxed" || cfg.DKIM.BodyCanon != "simple" {
		t.Errorf("dkim canon defaults = %s/%s", cfg.DKIM.HeaderCanon, cfg.DKIM.BodyCanon)
	}
	if len(cfg.Conversions.Purchase) == 0 {
		t.Error("purchase keywords empty")
	}
	if cfg.Tracking.FallbackURL == "" {
		t.Error("fallback URL empty")
	}
}

func TestDelayFor(t *testing.T) {
	cfg := Default()

	if d := cfg.Dispatch.DelayFor("gmail.com"); d != time.Second {
		t.Errorf("gmail delay = %v, want 1s", d)
	}
	if d := cfg.Dispatch.DelayFor("smallbiz.example"); d != 250*time.Millisecond {
		t.Errorf("unlisted domain delay = %v, want base 250ms", d)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
server:
  api_port: 9999
dispatch:
  max_attempts: 5
  domain_delays_ms:
    gmail.com: 4000
dkim:
  domain: mail.example.com
  selector: s1
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.APIPort != 9999 {
		t.Errorf("api port = %d", cfg.Server.APIPort)
	}
	if cfg.Dispatch.MaxAttempts != 5 {
		t.Errorf("max attempts = %d", cfg.Dispatch.MaxAttempts)
	}
	if d := cfg.Dispatch.DelayFor("gmail.com"); d != 4*time.Second {
		t.Errorf("gmail delay = %v", d)
	}
	if cfg.DKIM.Domain != "mail.example.com" || cfg.DKIM.Selector != "s1" {
		t.Errorf("dkim = %+v", cfg.DKIM)
	}
	// untouched sections still get defaults
	if cfg.Server.TrackingPort != 8081 {
		t.Errorf("tracking port default missing: %d", cfg.Server.TrackingPort)
	}
}

func TestLoadFromEnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://env-test")
	t.Setenv("DKIM_SELECTOR", "envsel")
	t.Setenv("API_PORT", "7070")

	cfg, err := LoadFromEnv("")
	if err != nil {
		t.Fatalf("load from env: %v", err)
	}
	if cfg.Database.URL != "postgres://env-test" {
		t.Errorf("database url = %q", cfg.Database.URL)
	}
	if cfg.DKIM.Selector != "envsel" {
		t.Errorf("dkim selector = %q", cfg.DKIM.Selector)
	}
	if cfg.Server.APIPort != 7070 {
		t.Errorf("api port = %d", cfg.Server.APIPort)
	}
}

func TestLoadFromEnvMissingFileFallsBack(t *testing.T) {
	cfg, err := LoadFromEnv(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing file should not error: %v", err)
	}
	if cfg.Dispatch.MaxAttempts != 3 {
		t.Errorf("defaults not applied: %+v", cfg.Dispatch)
	}
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestDefaultsWithoutFile(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), true, env(nil))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "8080" || cfg.Booking.MaxDaysAhead != 21 || cfg.Booking.MaxAttempts != 3 {
		t.Fatalf("defaults = %+v", cfg)
	}
	if _, err := LoadWithEnv(filepath.Join(t.TempDir(), "missing.yaml"), false, env(nil)); err == nil {
		t.Fatal("required file missing but no error")
	}
}

func TestFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	doc := `
server:
  port: "9090"
  shutdownTimeout: 3s
booking:
  maxDaysAhead: 14
seed:
  travelTimes: data/travel_times.csv
  products:
    - {id: pils, name: Pils, priceCents: 250, stockQty: 40, active: true}
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadWithEnv(path, false, env(map[string]string{
		"PORT":            "7070",
		"DB_MIGRATE":      "true",
		"RATE_RPS":        "2.5",
		"TRUSTED_PROXIES": "10.0.0.0/8, 127.0.0.1",
	}))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != "7070" || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Fatalf("server = %+v", cfg.Server)
	}
	if cfg.Booking.MaxDaysAhead != 14 || !cfg.Database.Migrate || cfg.Rate.RPS != 2.5 {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.Rate.TrustedProxies) != 2 || cfg.Rate.TrustedProxies[1] != "127.0.0.1" {
		t.Fatalf("trusted proxies = %v", cfg.Rate.TrustedProxies)
	}
	if len(cfg.Seed.Products) != 1 || cfg.Seed.Products[0].PriceCents != 250 || !cfg.Seed.Products[0].Active {
		t.Fatalf("seed = %+v", cfg.Seed)
	}
}

func TestValidate(t *testing.T) {
	_, err := LoadWithEnv("", true, env(map[string]string{
		"MAX_DAYS_AHEAD":  "0",
		"LOG_LEVEL":       "loud",
		"AUTH_MODE":       "hmac",
		"TRUSTED_PROXIES": "10.0.0.0/33",
	}))
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"maxDaysAhead", "log.level", "hmacSecret", "trustedProxies"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q lacks %q", err, want)
		}
	}
	if _, err := LoadWithEnv("", true, env(map[string]string{"RATE_BURST": "x"})); err == nil {
		t.Fatal("bad int accepted")
	}
}

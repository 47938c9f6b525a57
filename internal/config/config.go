// Package config loads service settings from an optional YAML file and
// environment overrides. Environment wins over the file.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"slotbook/internal/model"
	"slotbook/internal/schedule"
)

type Config struct {
	Server   Server   `yaml:"server"`
	Database Database `yaml:"database"`
	Redis    Redis    `yaml:"redis"`
	AMQP     AMQP     `yaml:"amqp"`
	Auth     Auth     `yaml:"auth"`
	Rate     Rate     `yaml:"rate"`
	Booking  Booking  `yaml:"booking"`
	Notify   Notify   `yaml:"notify"`
	Seed     Seed     `yaml:"seed"`
	Log      Log      `yaml:"log"`
}

type Server struct {
	Port            string        `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// Dev enables /debug.
	Dev bool `yaml:"dev"`
}

type Database struct {
	URL     string `yaml:"url"`
	Migrate bool   `yaml:"migrate"`
}

type Redis struct {
	URL string `yaml:"url"`
}

type AMQP struct {
	URL      string `yaml:"url"`
	Exchange string `yaml:"exchange"`
}

type Auth struct {
	Mode       string `yaml:"mode"`
	HMACSecret string `yaml:"hmacSecret"`
}

// Rate limits order placement per client address.
type Rate struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
	// TrustedProxies are addresses or CIDRs whose X-Forwarded-For is believed.
	TrustedProxies []string `yaml:"trustedProxies"`
}

type Booking struct {
	Location     string `yaml:"location"`
	MaxDaysAhead int    `yaml:"maxDaysAhead"`
	MaxAttempts  int    `yaml:"maxAttempts"`
}

type Notify struct {
	Secret      string `yaml:"secret"`
	MaxAttempts int    `yaml:"maxAttempts"`
}

// Seed is reference data loaded into an empty store at startup.
type Seed struct {
	TravelTimes string          `yaml:"travelTimes"`
	Products    []model.Product `yaml:"products"`
}

type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

func Default() Config {
	return Config{
		Server:  Server{Port: "8080", ShutdownTimeout: 10 * time.Second},
		Rate:    Rate{RPS: 5, Burst: 10},
		Auth:    Auth{Mode: "dev"},
		Booking: Booking{Location: schedule.DefaultLocation, MaxDaysAhead: schedule.DefaultMaxDaysAhead, MaxAttempts: 3},
		Notify:  Notify{MaxAttempts: 5},
		Log:     Log{Level: "info", Format: "json"},
	}
}

// Load reads path (a missing file is fine when optional) and applies the
// process environment.
func Load(path string, optional bool) (Config, error) {
	return LoadWithEnv(path, optional, os.Getenv)
}

func LoadWithEnv(path string, optional bool, getenv func(string) string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist) && optional:
		case err != nil:
			return Config{}, fmt.Errorf("config: %w", err)
		default:
			if err := yaml.Unmarshal(b, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if err := cfg.applyEnv(getenv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("PORT", &c.Server.Port)
	str("DATABASE_URL", &c.Database.URL)
	str("REDIS_URL", &c.Redis.URL)
	str("AMQP_URL", &c.AMQP.URL)
	str("AUTH_MODE", &c.Auth.Mode)
	str("AUTH_HMAC_SECRET", &c.Auth.HMACSecret)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("NOTIFY_SECRET", &c.Notify.Secret)
	str("SEED_TRAVEL_TIMES", &c.Seed.TravelTimes)

	if v := strings.TrimSpace(getenv("TRUSTED_PROXIES")); v != "" {
		c.Rate.TrustedProxies = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Rate.TrustedProxies = append(c.Rate.TrustedProxies, p)
			}
		}
	}

	if v := getenv("DB_MIGRATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DB_MIGRATE: %w", err)
		}
		c.Database.Migrate = b
	}
	if v := getenv("DEV"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: DEV: %w", err)
		}
		c.Server.Dev = b
	}
	if v := getenv("RATE_RPS"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: RATE_RPS: %w", err)
		}
		c.Rate.RPS = f
	}
	ints := map[string]*int{
		"RATE_BURST":     &c.Rate.Burst,
		"MAX_DAYS_AHEAD": &c.Booking.MaxDaysAhead,
	}
	for key, dst := range ints {
		if v := getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("config: %s: %w", key, err)
			}
			*dst = n
		}
	}
	return nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port is empty"))
	}
	if c.Booking.MaxDaysAhead <= 0 {
		errs = append(errs, fmt.Errorf("booking.maxDaysAhead must be positive, got %d", c.Booking.MaxDaysAhead))
	}
	if c.Booking.MaxAttempts <= 0 {
		errs = append(errs, fmt.Errorf("booking.maxAttempts must be positive, got %d", c.Booking.MaxAttempts))
	}
	if c.Rate.RPS < 0 || c.Rate.Burst < 0 {
		errs = append(errs, errors.New("rate limits must not be negative"))
	}
	for _, p := range c.Rate.TrustedProxies {
		if _, err := netip.ParsePrefix(p); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(p); err != nil {
			errs = append(errs, fmt.Errorf("rate.trustedProxies: %q is not an address or CIDR", p))
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "warning", "error", "fatal", "panic":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not a level", c.Log.Level))
	}
	switch strings.ToLower(c.Auth.Mode) {
	case "dev":
	case "hmac":
		if c.Auth.HMACSecret == "" {
			errs = append(errs, errors.New("auth.hmacSecret is required in hmac mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode %q is not supported", c.Auth.Mode))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// Package config reads service configuration from the environment, with an
// optional .env file underneath it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"

	"finance-push-go/internal/push"
)

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address was configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type VAPIDConfig struct {
	PublicKey  string
	PrivateKey string
	Subject    string
}

type SchedulerConfig struct {
	Spec        string
	Enabled     bool
	Concurrency int
	LeaseTTL    time.Duration
}

type PushConfig struct {
	TTL         int
	Urgency     webpush.Urgency
	Timeout     time.Duration
	Concurrency int
	Icon        string
	Badge       string
	AppURL      string
}

type Config struct {
	Port          string
	DatabaseURL   string
	AuthJWTSecret string
	WebhookSecret string
	LogLevel      string

	Redis     RedisConfig
	VAPID     VAPIDConfig
	Scheduler SchedulerConfig
	Push      PushConfig
}

// Load reads the process environment. Values from the given .env files
// (default ".env") fill in variables the environment does not set; missing
// files are ignored.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}

	fromFiles := make(map[string]string)
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			if _, ok := fromFiles[k]; !ok {
				fromFiles[k] = v
			}
		}
	}

	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fromFiles[key]
		return v, ok
	})
}

// FromLookup builds a Config from lookup. Every malformed variable is
// reported, not just the first.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	e := env{lookup: lookup}

	cfg := &Config{
		Port:          e.str("PORT", "8080"),
		DatabaseURL:   e.str("DATABASE_URL", ""),
		AuthJWTSecret: e.str("AUTH_JWT_SECRET", ""),
		WebhookSecret: e.str("WEBHOOK_SECRET", ""),
		LogLevel:      e.str("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			Addr:     e.str("REDIS_ADDR", ""),
			Password: e.str("REDIS_PASSWORD", ""),
			DB:       e.int("REDIS_DB", 0, 0),
		},
		VAPID: VAPIDConfig{
			PublicKey:  e.str("VAPID_PUBLIC_KEY", ""),
			PrivateKey: e.str("VAPID_PRIVATE_KEY", ""),
			Subject:    e.str("VAPID_SUBJECT", ""),
		},
		Scheduler: SchedulerConfig{
			Spec:        e.str("SCHEDULER_SPEC", "@every 15m"),
			Enabled:     e.bool("SCHEDULER_ENABLED", true),
			Concurrency: e.int("SCHEDULER_CONCURRENCY", 4, 1),
			LeaseTTL:    e.duration("SCHEDULER_LEASE_TTL", 10*time.Minute),
		},
		Push: PushConfig{
			TTL:         e.int("PUSH_TTL", 86400, 0),
			Timeout:     e.duration("PUSH_TIMEOUT", 10*time.Second),
			Concurrency: e.int("PUSH_CONCURRENCY", 4, 1),
			Icon:        e.str("NOTIFICATION_ICON", ""),
			Badge:       e.str("NOTIFICATION_BADGE", ""),
			AppURL:      e.str("APP_URL", "/"),
		},
	}

	urgency, err := push.ParseUrgency(e.str("PUSH_URGENCY", ""))
	if err != nil {
		e.fail("PUSH_URGENCY", err)
	}
	cfg.Push.Urgency = urgency

	if e.err != nil {
		return nil, e.err
	}
	return cfg, nil
}

// Require checks that each named variable was set to a non-empty value.
func (c *Config) Require(names ...string) error {
	var err error
	for _, name := range names {
		var v string
		switch name {
		case "DATABASE_URL":
			v = c.DatabaseURL
		case "AUTH_JWT_SECRET":
			v = c.AuthJWTSecret
		case "VAPID_PUBLIC_KEY":
			v = c.VAPID.PublicKey
		case "VAPID_PRIVATE_KEY":
			v = c.VAPID.PrivateKey
		case "VAPID_SUBJECT":
			v = c.VAPID.Subject
		case "REDIS_ADDR":
			v = c.Redis.Addr
		default:
			err = multierr.Append(err, fmt.Errorf("config: %s is not a known variable", name))
			continue
		}
		if v == "" {
			err = multierr.Append(err, fmt.Errorf("config: %s is required", name))
		}
	}
	return err
}

type env struct {
	lookup func(string) (string, bool)
	err    error
}

func (e *env) fail(key string, err error) {
	e.err = multierr.Append(e.err, fmt.Errorf("config: %s: %w", key, err))
}

func (e *env) str(key, def string) string {
	if v, ok := e.lookup(key); ok {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return def
}

func (e *env) int(key string, def, minimum int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		e.fail(key, fmt.Errorf("%q is not an integer", raw))
		return def
	}
	if n < minimum {
		e.fail(key, fmt.Errorf("must be at least %d, got %d", minimum, n))
		return def
	}
	return n
}

func (e *env) bool(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		e.fail(key, fmt.Errorf("%q is not a boolean", raw))
		return def
	}
	return b
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		e.fail(key, fmt.Errorf("%q is not a duration", raw))
		return def
	}
	if d <= 0 {
		e.fail(key, fmt.Errorf("must be positive, got %s", d))
		return def
	}
	return d
}

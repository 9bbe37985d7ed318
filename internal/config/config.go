package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Mailbox backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string

	// Mailbox storage
	MailboxBackend string
	SQLitePath     string

	// Relay behaviour
	SessionTTL       time.Duration
	MaxPayloadBytes  int
	MailboxRetention time.Duration // zero keeps envelopes forever
	SweepInterval    time.Duration
	RecipientPolicy  string

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// It panics on invalid values and, in production, on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg, err := FromEnv(os.Getenv)
	if err != nil {
		panic(err.Error())
	}
	return cfg
}

// FromEnv builds a Config from a lookup function such as os.Getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	get := func(key, defaultValue string) string {
		if value := strings.TrimSpace(getenv(key)); value != "" {
			return value
		}
		return defaultValue
	}

	cfg := &Config{
		Port:             get("PORT", "8080"),
		Env:              get("ENV", "development"),
		DatabaseURL:      getenv("DATABASE_URL"),
		RedisURL:         getenv("REDIS_URL"),
		MailboxBackend:   strings.ToLower(get("MAILBOX_BACKEND", BackendMemory)),
		SQLitePath:       get("SQLITE_PATH", "./data/agora.db"),
		RecipientPolicy:  strings.ToLower(get("RECIPIENT_POLICY", "any")),
		AutoBlockEnabled: get("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	var err error
	if cfg.SessionTTL, err = parseDuration("SESSION_TTL", get("SESSION_TTL", "24h"), false); err != nil {
		return nil, err
	}
	if cfg.MailboxRetention, err = parseDuration("MAILBOX_RETENTION", get("MAILBOX_RETENTION", "168h"), true); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = parseDuration("SWEEP_INTERVAL", get("SWEEP_INTERVAL", "1m"), false); err != nil {
		return nil, err
	}
	if cfg.MaxPayloadBytes, err = strconv.Atoi(get("MAX_PAYLOAD_BYTES", "65536")); err != nil || cfg.MaxPayloadBytes <= 0 {
		return nil, fmt.Errorf("MAX_PAYLOAD_BYTES must be a positive integer")
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	switch cfg.RecipientPolicy {
	case "any", "known":
	default:
		return nil, fmt.Errorf("RECIPIENT_POLICY must be any or known, got %q", cfg.RecipientPolicy)
	}

	switch cfg.MailboxBackend {
	case BackendMemory, BackendSQLite:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required for the redis mailbox backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the postgres mailbox backend")
		}
	default:
		return nil, fmt.Errorf("unknown MAILBOX_BACKEND %q", cfg.MailboxBackend)
	}

	// In production, mailboxes must survive a restart
	if cfg.Env == "production" && cfg.MailboxBackend == BackendMemory {
		return nil, fmt.Errorf("MAILBOX_BACKEND must be persistent in production")
	}

	return cfg, nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func parseDuration(key, value string, allowZero bool) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 || (d == 0 && !allowZero) {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}

package config

import (
	"testing"
	"time"
)

func envMap(m map[string]string) func(string) string {
	return func(key string) string { return m[key] }
}

func TestFromEnvDefaults(t *testing.T) {
	cfg, err := FromEnv(envMap(nil))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != "8080" || !cfg.IsDevelopment() {
		t.Errorf("unexpected port/env: %s/%s", cfg.Port, cfg.Env)
	}
	if cfg.MailboxBackend != BackendMemory {
		t.Errorf("expected memory backend, got %s", cfg.MailboxBackend)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("expected 24h session ttl, got %s", cfg.SessionTTL)
	}
	if cfg.MailboxRetention != 168*time.Hour {
		t.Errorf("expected 168h retention, got %s", cfg.MailboxRetention)
	}
	if cfg.SweepInterval != time.Minute {
		t.Errorf("expected 1m sweep interval, got %s", cfg.SweepInterval)
	}
	if cfg.MaxPayloadBytes != 65536 {
		t.Errorf("expected 65536, got %d", cfg.MaxPayloadBytes)
	}
	if cfg.RecipientPolicy != "any" {
		t.Errorf("expected any, got %s", cfg.RecipientPolicy)
	}
}

func TestFromEnvOverrides(t *testing.T) {
	cfg, err := FromEnv(envMap(map[string]string{
		"MAILBOX_BACKEND":      "Redis",
		"REDIS_URL":            "redis://localhost:6379",
		"MAILBOX_RETENTION":    "0",
		"SESSION_TTL":          "90m",
		"RECIPIENT_POLICY":     "known",
		"RATE_LIMIT_WHITELIST": "10.0.0.0/8, ,127.0.0.1",
		"AUTO_BLOCK_ENABLED":   "true",
	}))
	if err != nil {
		t.Fatal(err)
	}

	if cfg.MailboxBackend != BackendRedis {
		t.Errorf("expected redis, got %s", cfg.MailboxBackend)
	}
	if cfg.MailboxRetention != 0 {
		t.Errorf("expected retention disabled, got %s", cfg.MailboxRetention)
	}
	if cfg.SessionTTL != 90*time.Minute {
		t.Errorf("expected 90m, got %s", cfg.SessionTTL)
	}
	if len(cfg.RateLimitWhitelist) != 2 {
		t.Errorf("expected 2 whitelist entries, got %v", cfg.RateLimitWhitelist)
	}
	if !cfg.AutoBlockEnabled {
		t.Error("expected auto block enabled")
	}
}

func TestFromEnvInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad ttl", map[string]string{"SESSION_TTL": "soon"}},
		{"zero ttl", map[string]string{"SESSION_TTL": "0s"}},
		{"negative retention", map[string]string{"MAILBOX_RETENTION": "-1h"}},
		{"bad payload limit", map[string]string{"MAX_PAYLOAD_BYTES": "big"}},
		{"zero payload limit", map[string]string{"MAX_PAYLOAD_BYTES": "0"}},
		{"unknown backend", map[string]string{"MAILBOX_BACKEND": "etcd"}},
		{"redis without url", map[string]string{"MAILBOX_BACKEND": "redis"}},
		{"postgres without url", map[string]string{"MAILBOX_BACKEND": "postgres"}},
		{"unknown policy", map[string]string{"RECIPIENT_POLICY": "friends"}},
		{"memory in production", map[string]string{"ENV": "production"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := FromEnv(envMap(tt.env)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadPanicsOnInvalid(t *testing.T) {
	t.Setenv("MAILBOX_BACKEND", "etcd")

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	Load()
}

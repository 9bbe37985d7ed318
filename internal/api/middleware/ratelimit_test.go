package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func sendRequest(h http.Handler, method, path, remoteAddr, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func testLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"POST /v1/register": {2, time.Hour, ipKey},
		"POST /v1/send":     {2, time.Hour, tokenKey},
	}
}

func TestRateLimiterLocal(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{Limits: testLimits()})
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		rec := sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.1:1234", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
		if rec.Header().Get("X-RateLimit-Limit") != "2" {
			t.Fatalf("missing rate limit header")
		}
	}

	rec := sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.1:1234", "")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}

	// Other clients and unlimited endpoints are unaffected.
	if rec := sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.2:1234", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for other IP, got %d", rec.Code)
	}
	if rec := sendRequest(h, http.MethodGet, "/health", "10.0.0.1:1234", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for unlimited endpoint, got %d", rec.Code)
	}
}

func TestRateLimiterKeysByToken(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{Limits: testLimits()})
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		sendRequest(h, http.MethodPost, "/v1/send", "10.0.0.1:1234", "token-a")
	}
	if rec := sendRequest(h, http.MethodPost, "/v1/send", "10.0.0.1:1234", "token-a"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 for token-a, got %d", rec.Code)
	}
	if rec := sendRequest(h, http.MethodPost, "/v1/send", "10.0.0.1:1234", "token-b"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for token-b on the same IP, got %d", rec.Code)
	}
}

func TestRateLimiterWhitelist(t *testing.T) {
	rl := NewRateLimiter(nil, zerolog.Nop(), RateLimiterConfig{
		Limits:    testLimits(),
		Whitelist: []string{"10.1.0.0/16", "192.168.1.5", "not-a-cidr/99"},
	})
	h := rl.Middleware(okHandler())

	for i := 0; i < 5; i++ {
		if rec := sendRequest(h, http.MethodPost, "/v1/register", "10.1.2.3:1", ""); rec.Code != http.StatusOK {
			t.Fatalf("CIDR whitelisted request %d got %d", i, rec.Code)
		}
		if rec := sendRequest(h, http.MethodPost, "/v1/register", "192.168.1.5:1", ""); rec.Code != http.StatusOK {
			t.Fatalf("IP whitelisted request %d got %d", i, rec.Code)
		}
	}
}

func TestRateLimiterRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{Limits: testLimits()})
	h := rl.Middleware(okHandler())

	for i := 0; i < 2; i++ {
		if rec := sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.1:1234", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, rec.Code)
		}
	}
	if rec := sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.1:1234", ""); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	if !mr.Exists("ratelimit:ip:10.0.0.1") {
		t.Fatal("expected sliding window key in redis")
	}
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { client.Close() })
	mr.Close()

	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{Limits: testLimits()})
	h := rl.Middleware(okHandler())

	for i := 0; i < 3; i++ {
		if rec := sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.1:1234", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200 with redis down, got %d", i, rec.Code)
		}
	}
}

func TestAutoBlock(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	rl := NewRateLimiter(client, zerolog.Nop(), RateLimiterConfig{
		Limits:           testLimits(),
		AutoBlockEnabled: true,
	})
	h := rl.Middleware(okHandler())

	for i := 0; i < 12; i++ {
		sendRequest(h, http.MethodPost, "/v1/register", "10.0.0.9:1234", "")
	}

	if !rl.blocker.IsBlocked(context.Background(), "10.0.0.9") {
		t.Fatal("expected IP to be blocked")
	}
	if rec := sendRequest(h, http.MethodGet, "/health", "10.0.0.9:1234", ""); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for blocked IP, got %d", rec.Code)
	}

	rl.blocker.Unblock(context.Background(), "10.0.0.9")
	if rec := sendRequest(h, http.MethodGet, "/health", "10.0.0.9:1234", ""); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 after unblock, got %d", rec.Code)
	}
}

func TestRealIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if got := RealIP(req); got != "10.0.0.1" {
		t.Fatalf("expected remote addr, got %s", got)
	}

	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	if got := RealIP(req); got != "203.0.113.7" {
		t.Fatalf("expected forwarded IP, got %s", got)
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		token  string
		ok     bool
	}{
		{"Bearer abc", "abc", true},
		{"bearer abc", "abc", true},
		{"Bearer ", "", false},
		{"Basic abc", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		token, ok := BearerToken(req)
		if token != tt.token || ok != tt.ok {
			t.Errorf("BearerToken(%q) = %q, %v", tt.header, token, ok)
		}
	}
}

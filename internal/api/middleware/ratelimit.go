package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/agora-protocol/relay/internal/crypto"
	"github.com/agora-protocol/relay/internal/metrics"
)

// RateLimit defines limits for an endpoint.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// DefaultLimits returns the per-endpoint limits keyed by "METHOD /path".
func DefaultLimits() map[string]RateLimit {
	return map[string]RateLimit{
		"POST /v1/register":     {30, time.Hour, ipKey},
		"POST /v1/send":         {120, time.Minute, tokenKey},
		"GET /v1/peers":         {60, time.Minute, tokenKey},
		"GET /v1/messages":      {300, time.Minute, tokenKey},
		"DELETE /v1/disconnect": {30, time.Minute, tokenKey},
	}
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool     // Enable auto-blocking after repeated violations
	Limits           map[string]RateLimit
}

// maxLocalLimiters bounds the in-process limiter table before idle entries are pruned.
const maxLocalLimiters = 10000

// RateLimiter limits requests per endpoint. With a Redis client it keeps a
// sliding window shared by every relay instance; without one it falls back
// to in-process token buckets.
type RateLimiter struct {
	client           *redis.Client
	limits           map[string]RateLimit
	blocker          *IPBlocker
	logger           zerolog.Logger
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool

	mu    sync.Mutex
	local map[string]*rate.Limiter
}

// NewRateLimiter creates a new rate limiter. client may be nil.
func NewRateLimiter(client *redis.Client, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	limits := cfg.Limits
	if limits == nil {
		limits = DefaultLimits()
	}

	rl := &RateLimiter{
		client:           client,
		limits:           limits,
		blocker:          NewIPBlocker(client),
		logger:           logger,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
		local:            make(map[string]*rate.Limiter),
	}

	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	if rl.whitelistIPs[ipStr] {
		return true
	}

	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// tokenKey limits by session token, keyed by a digest prefix so raw tokens
// never reach Redis.
func tokenKey(r *http.Request) string {
	token, ok := BearerToken(r)
	if !ok {
		return ipKey(r)
	}
	return "ratelimit:token:" + crypto.HashToken(token)[:16]
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement checks the limit for key and records the request.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	if rl.client == nil {
		return rl.checkLocal(key, limit, window)
	}

	now := time.Now()
	windowStart := now.Add(-window)

	pipe := rl.client.Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(windowStart.UnixMilli(), 10))
	countCmd := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		// Fail open on Redis errors.
		rl.logger.Error().Err(err).Str("key", key).Msg("rate limit check failed")
		return true, limit, now.Add(window)
	}

	count := countCmd.Val()
	remaining := limit - int(count) - 1
	if remaining < 0 {
		remaining = 0
	}

	return count < int64(limit), remaining, now.Add(window)
}

func (rl *RateLimiter) checkLocal(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.local[key]
	if !ok {
		if len(rl.local) >= maxLocalLimiters {
			rl.pruneLocked()
		}
		lim = rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)
		rl.local[key] = lim
	}

	now := time.Now()
	allowed := lim.AllowN(now, 1)
	remaining := int(lim.TokensAt(now))
	if remaining < 0 {
		remaining = 0
	}
	return allowed, remaining, now.Add(window / time.Duration(limit))
}

// pruneLocked drops limiters that have refilled completely.
func (rl *RateLimiter) pruneLocked() {
	now := time.Now()
	for key, lim := range rl.local {
		if lim.TokensAt(now) >= float64(lim.Burst()) {
			delete(rl.local, key)
		}
	}
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		if rl.blocker.IsBlocked(r.Context(), ip) {
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			JSONError(w, http.StatusForbidden, "Blocked", "temporarily blocked")
			return
		}

		endpoint := r.Method + " " + r.URL.Path
		limit, ok := rl.limits[endpoint]
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			retryAfter := int(time.Until(resetAt).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))

			metrics.RateLimitHits.WithLabelValues(endpoint).Inc()
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", endpoint).
				Str("key", key).
				Msg("rate limit exceeded")

			JSONError(w, http.StatusTooManyRequests, "RateLimited", "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// trackViolation counts rate limit violations and auto-blocks repeat
// offenders. Blocking needs Redis.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled || rl.client == nil {
		return
	}

	key := fmt.Sprintf("violations:ip:%s", ip)
	count, _ := rl.client.Incr(ctx, key).Result()
	rl.client.Expire(ctx, key, time.Hour)

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks. A nil client blocks nothing.
type IPBlocker struct {
	client *redis.Client
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(client *redis.Client) *IPBlocker {
	return &IPBlocker{client: client}
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	if b.client == nil {
		return false
	}
	exists, _ := b.client.Exists(ctx, blockKey(ip)).Result()
	return exists > 0
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	if b.client == nil {
		return
	}
	b.client.Set(ctx, blockKey(ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	if b.client == nil {
		return
	}
	b.client.Del(ctx, blockKey(ip))
}

func blockKey(ip string) string {
	return "blocked:ip:" + ip
}

package middleware

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/pelino250/safeboda/internal/auth"
)

// Limit is a token-bucket configuration.
type Limit struct {
	Rate  float64
	Burst float64
}

// Limiter applies per-client token buckets backed by Redis so limits hold
// across service replicas. Reads and writes get separate budgets because the
// cached listing endpoint tolerates far more traffic than mutations.
type Limiter struct {
	client    redis.Cmdable
	readLimit Limit
	writeCfg  Limit
	script    *redis.Script
}

// NewLimiter constructs the limiter. A nil client disables limiting.
func NewLimiter(client redis.Cmdable, read, write Limit) *Limiter {
	if client == nil {
		return nil
	}
	return &Limiter{client: client, readLimit: read, writeCfg: write, script: redis.NewScript(tokenBucketLua)}
}

// Middleware wraps next with rate limiting. A Redis failure admits the
// request; limiting is protection, not correctness.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	if l == nil || (l.readLimit.Rate <= 0 && l.writeCfg.Rate <= 0) {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cfg := l.writeCfg
		scope := "write"
		if isReadMethod(r.Method) {
			cfg = l.readLimit
			scope = "read"
		}
		if cfg.Rate <= 0 || cfg.Burst <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		allowed, retryAfter, err := l.allow(r.Context(), scope, clientIdentifier(r), cfg)
		if err != nil {
			next.ServeHTTP(w, r)
			return
		}
		if !allowed {
			if retryAfter > 0 {
				w.Header().Set("Retry-After", formatRetryAfter(retryAfter))
			}
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (l *Limiter) allow(ctx context.Context, scope, identifier string, cfg Limit) (bool, time.Duration, error) {
	key := strings.Join([]string{"safeboda", "rl", scope, identifier}, ":")
	result, err := l.script.Run(ctx, l.client, []string{key},
		time.Now().UnixMilli(), cfg.Rate, cfg.Burst, 1).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := result.([]interface{})
	if !ok || len(values) != 3 {
		return false, 0, errors.New("invalid rate limiter response")
	}
	allowed, err := toInt64(values[0])
	if err != nil {
		return false, 0, err
	}
	waitMillis, err := toInt64(values[2])
	if err != nil {
		return false, 0, err
	}
	if allowed != 1 {
		return false, time.Duration(waitMillis) * time.Millisecond, nil
	}
	return true, 0, nil
}

func isReadMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return true
	default:
		return false
	}
}

// clientIdentifier prefers the authenticated account so a rider on a flaky
// mobile network is not penalized with its carrier NAT neighbours.
func clientIdentifier(r *http.Request) string {
	if claims, ok := auth.ClaimsFromContext(r.Context()); ok && claims.Subject != "" {
		return claims.Subject
	}
	if fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); fwd != "" {
		parts := strings.Split(fwd, ",")
		return strings.TrimSpace(parts[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	if r.RemoteAddr == "" {
		return "anonymous"
	}
	return r.RemoteAddr
}

func formatRetryAfter(d time.Duration) string {
	seconds := int(math.Ceil(d.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return strconv.Itoa(seconds)
}

func toInt64(v interface{}) (int64, error) {
	switch val := v.(type) {
	case int64:
		return val, nil
	case float64:
		return int64(val), nil
	case string:
		return strconv.ParseInt(val, 10, 64)
	default:
		return 0, errors.New("unsupported type")
	}
}

const tokenBucketLua = `
local key = KEYS[1]
local now_ms = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local capacity = tonumber(ARGV[3])
local requested = tonumber(ARGV[4])

if rate <= 0 then
  return {1, capacity, 0}
end

local state = redis.call('HMGET', key, 'tokens', 'timestamp')
local tokens = tonumber(state[1])
local last = tonumber(state[2])

if tokens == nil then
  tokens = capacity
end
if last == nil then
  last = now_ms
end

local delta = now_ms - last
if delta < 0 then
  delta = 0
end
local refill = delta * rate / 1000
if refill > 0 then
  tokens = math.min(capacity, tokens + refill)
  last = now_ms
end

-- wait is kept in whole milliseconds: redis truncates lua numbers to
-- integers in script replies, so a fractional seconds value would come
-- back as 0.
local allowed = tokens >= requested
local wait_ms = 0
if allowed then
  tokens = tokens - requested
else
  wait_ms = math.ceil(((requested - tokens) / rate) * 1000)
end

redis.call('HMSET', key, 'tokens', tokens, 'timestamp', last)
local ttl = math.ceil((capacity / rate) * 1000)
redis.call('PEXPIRE', key, ttl)

if allowed then
  return {1, tokens, 0}
else
  return {0, tokens, wait_ms}
end
`

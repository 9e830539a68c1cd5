// Package ratelimit throttles API clients with fixed one-minute windows
// counted in Redis.
package ratelimit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const maxPeekBytes = 1 << 16

// Limiter decides whether a request keyed by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// RedisLimiter counts requests per key in fixed windows using INCR and EXPIRE.
type RedisLimiter struct {
	client redis.Cmdable
	limit  int64
	window time.Duration
	prefix string
	now    func() time.Time
}

// NewRedisLimiter allows limit requests per key per window.
func NewRedisLimiter(client redis.Cmdable, limit int, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
		prefix: "siteassist:ratelimit:",
		now:    time.Now,
	}
}

// Connect creates a Redis client and checks that the server answers.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return client, nil
}

// Allow increments the key's counter for the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	bucket := l.now().UnixNano() / int64(l.window)
	redisKey := fmt.Sprintf("%s%s:%d", l.prefix, key, bucket)

	var incr *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, l.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= l.limit, nil
}

// Middleware rejects requests over the limit with 429. Limiter failures let
// the request through.
func Middleware(l Limiter, log *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := Key(r)
			ok, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warnw("rate limiter unavailable", "key", key, "error", err)
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("Retry-After", "60")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]string{
					"status": "rate_limited",
					"error":  "Too many requests. Please try again later.",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type clientBody struct {
	ClientID string `json:"clientId"`
}

// Key identifies the caller: by clientId when the request names one (query
// string or JSON body), otherwise by remote IP. A peeked body is restored.
func Key(r *http.Request) string {
	if id := strings.TrimSpace(r.URL.Query().Get("clientId")); id != "" {
		return "client:" + id
	}

	if r.Method == http.MethodPost && r.Body != nil {
		body, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
		r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(body), r.Body))
		if err == nil {
			var cb clientBody
			if json.Unmarshal(body, &cb) == nil && strings.TrimSpace(cb.ClientID) != "" {
				return "client:" + strings.TrimSpace(cb.ClientID)
			}
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return "ip:" + host
}

package middleware

import (
	"context"
	"crypto/sha256"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/photo-challenges/internal/http/response"
	"github.com/diagnosis/photo-challenges/pkg/logger"
	"github.com/redis/go-redis/v9"
)

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	Prefix   string
	KeyFunc  func(r *http.Request) []string
	SkipFunc func(r *http.Request) bool
}

// RateLimiter is a fixed-window limiter backed by Redis INCR/EXPIRE.
type RateLimiter struct {
	client redis.Cmdable
	config RateLimitConfig
	now    func() time.Time
}

func NewRateLimiter(client redis.Cmdable, config RateLimitConfig) *RateLimiter {
	if config.KeyFunc == nil {
		config.KeyFunc = ClientIPKeyFunc
	}
	if config.Window <= 0 {
		config.Window = time.Minute
	}
	return &RateLimiter{client: client, config: config, now: time.Now}
}

func (rl *RateLimiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if rl.config.SkipFunc != nil && rl.config.SkipFunc(r) {
				next.ServeHTTP(w, r)
				return
			}

			for _, key := range rl.config.KeyFunc(r) {
				if !rl.allow(r.Context(), key) {
					w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.config.Window.Seconds())))
					response.RateLimit(w, "Too many requests. Try again later.")
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

// allow fails open when Redis is unavailable.
func (rl *RateLimiter) allow(ctx context.Context, key string) bool {
	if rl.client == nil || rl.config.Requests <= 0 {
		return true
	}
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	redisKey := rl.windowKey(key)

	var incr *redis.IntCmd
	_, err := rl.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, redisKey)
		pipe.Expire(ctx, redisKey, rl.config.Window)
		return nil
	})
	if err != nil {
		logger.WarnContext(ctx, "Rate limiter unavailable, allowing request", "error", err)
		return true
	}
	return incr.Val() <= int64(rl.config.Requests)
}

func (rl *RateLimiter) windowKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	window := rl.now().UnixNano() / int64(rl.config.Window)
	return fmt.Sprintf("ratelimit:%s:%x:%d", rl.config.Prefix, sum[:8], window)
}

// ClientIPKeyFunc limits by client IP.
func ClientIPKeyFunc(r *http.Request) []string {
	if ip := clientIP(r); ip != "" {
		return []string{"ip:" + ip}
	}
	return nil
}

func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

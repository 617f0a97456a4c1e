package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig configures the fixed window rate limiter.
type RateLimitConfig struct {
	Max    int
	Window time.Duration
	// KeyFunc extracts the client key. Defaults to the client IP.
	KeyFunc func(*http.Request) string
	// Prefix namespaces counters when several limiters share a Counter.
	Prefix string
}

// Counter counts hits for a key in the window starting at windowStart.
type Counter interface {
	Hit(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error)
}

// RateLimit rejects clients above cfg.Max requests per window with 429.
// Counter errors fail open: the request is served and the error logged.
func RateLimit(cfg RateLimitConfig, c Counter) Middleware {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			now := time.Now()
			start := now.Truncate(cfg.Window)
			reset := start.Add(cfg.Window)

			n, err := c.Hit(r.Context(), cfg.Prefix+cfg.KeyFunc(r), start, cfg.Window)
			if err != nil {
				zctx.From(r.Context()).Warn("Rate limit counter unavailable", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			remaining := max(int64(cfg.Max)-n, 0)
			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

			if n > int64(cfg.Max) {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Sub(now).Seconds()))))
				WriteError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RedisCounter keeps counters in Redis so every API replica shares them.
type RedisCounter struct {
	client redis.UniversalClient
}

// NewRedisCounter creates a RedisCounter.
func NewRedisCounter(client redis.UniversalClient) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Hit(ctx context.Context, key string, windowStart time.Time, window time.Duration) (int64, error) {
	k := "orderflow:rl:" + key + ":" + strconv.FormatInt(windowStart.Unix(), 10)
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	pipe.Expire(ctx, k, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "rate limit incr")
	}
	return incr.Val(), nil
}

// MemoryCounter keeps counters in process memory.
type MemoryCounter struct {
	mu      sync.Mutex
	windows map[string]memWindow
}

type memWindow struct {
	start time.Time
	count int64
}

// NewMemoryCounter creates a MemoryCounter. Expired windows are evicted
// every interval until ctx is done.
func NewMemoryCounter(ctx context.Context, interval time.Duration) *MemoryCounter {
	c := &MemoryCounter{windows: make(map[string]memWindow)}
	if interval > 0 {
		go c.evictLoop(ctx, interval)
	}
	return c
}

func (c *MemoryCounter) Hit(_ context.Context, key string, windowStart time.Time, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	w := c.windows[key]
	if !w.start.Equal(windowStart) {
		w = memWindow{start: windowStart}
	}
	w.count++
	c.windows[key] = w
	return w.count, nil
}

func (c *MemoryCounter) evictLoop(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			c.evict(now.Add(-interval))
		}
	}
}

func (c *MemoryCounter) evict(before time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, w := range c.windows {
		if w.start.Before(before) {
			delete(c.windows, k)
		}
	}
}

package ratelimit

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"prompt-video-pipeline/config"
)

// Decision is the outcome of one Allow call
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a request for a caller key
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// New builds the limiter named by rate_limit.backend. "off" returns nil.
// rdb is only used by the redis backend.
func New(cfg *config.Config, rdb *redis.Client) (Limiter, error) {
	rl := cfg.RateLimit
	switch rl.Backend {
	case "off", "":
		return nil, nil
	case "memory":
		return NewMemory(rl.MaxRequests, rl.Window), nil
	case "redis":
		if rdb == nil {
			return nil, fmt.Errorf("rate_limit.backend is redis but no redis client is configured")
		}
		return NewRedis(rdb, rl.MaxRequests, rl.Window), nil
	default:
		return nil, fmt.Errorf("unknown rate limit backend %q", rl.Backend)
	}
}

// ==================== in-process ====================

// Memory is a fixed-window limiter for a single process
type Memory struct {
	windows     sync.Map // key -> *window
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

type window struct {
	mu      sync.Mutex
	count   int
	resetAt time.Time
	removed bool // dropped by Cleanup; callers must load a fresh window
}

func NewMemory(maxRequests int, win time.Duration) *Memory {
	if maxRequests <= 0 {
		maxRequests = 60
	}
	if win <= 0 {
		win = time.Minute
	}
	return &Memory{maxRequests: maxRequests, window: win, now: time.Now}
}

// WithClock replaces time.Now
func (m *Memory) WithClock(now func() time.Time) *Memory {
	m.now = now
	return m
}

func (m *Memory) Allow(ctx context.Context, key string) (Decision, error) {
	var w *window
	for {
		actual, _ := m.windows.LoadOrStore(key, &window{})
		w = actual.(*window)
		w.mu.Lock()
		if !w.removed {
			break
		}
		w.mu.Unlock()
	}
	defer w.mu.Unlock()

	now := m.now()
	if w.resetAt.IsZero() || now.After(w.resetAt) {
		w.count = 1
		w.resetAt = now.Add(m.window)
		return Decision{Allowed: true, Remaining: m.maxRequests - 1}, nil
	}
	if w.count >= m.maxRequests {
		return Decision{Allowed: false, Remaining: 0, RetryAfter: w.resetAt.Sub(now)}, nil
	}
	w.count++
	return Decision{Allowed: true, Remaining: m.maxRequests - w.count}, nil
}

// Cleanup drops windows that expired more than one window ago
func (m *Memory) Cleanup() int {
	now := m.now()
	removed := 0
	m.windows.Range(func(k, v interface{}) bool {
		w := v.(*window)
		w.mu.Lock()
		if now.After(w.resetAt.Add(m.window)) && m.windows.CompareAndDelete(k, v) {
			w.removed = true
			removed++
		}
		w.mu.Unlock()
		return true
	})
	return removed
}

// RunCleanup calls Cleanup every interval until ctx is done
func (m *Memory) RunCleanup(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = m.window
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if n := m.Cleanup(); n > 0 {
				log.Printf("[ratelimit] Cleaned up %d rate limit entries", n)
			}
		}
	}
}

// ==================== redis ====================

// Redis is a fixed-window limiter shared by every instance using the same server
type Redis struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	prefix      string
}

func NewRedis(client *redis.Client, maxRequests int, win time.Duration) *Redis {
	if maxRequests <= 0 {
		maxRequests = 60
	}
	if win <= 0 {
		win = time.Minute
	}
	return &Redis{client: client, maxRequests: maxRequests, window: win, prefix: "ratelimit:"}
}

func (r *Redis) Allow(ctx context.Context, key string) (Decision, error) {
	k := r.prefix + key
	n, err := r.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("redis incr: %w", err)
	}
	if n == 1 {
		if err := r.client.PExpire(ctx, k, r.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("redis pexpire: %w", err)
		}
	}
	if int(n) > r.maxRequests {
		ttl, err := r.client.PTTL(ctx, k).Result()
		if err != nil || ttl < 0 {
			ttl = r.window
		}
		return Decision{Allowed: false, Remaining: 0, RetryAfter: ttl}, nil
	}
	return Decision{Allowed: true, Remaining: r.maxRequests - int(n)}, nil
}

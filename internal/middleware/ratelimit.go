package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// limiterStore counts hits per key inside a fixed window.
type limiterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int, error)
}

// RateLimitedReply is the reply sent once a client is over its limit.
const RateLimitedReply = "Error: Too many requests. Please try again later."

type RateLimiter struct {
	store  limiterStore
	limit  int
	window time.Duration
}

// NewRateLimiter keeps counters in process memory.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  newMemoryStore(window),
		limit:  limit,
		window: window,
	}
}

// NewRedisRateLimiter keeps counters in Redis so every instance behind a
// load balancer shares them.
func NewRedisRateLimiter(client redis.Cmdable, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		store:  &redisStore{client: client, prefix: "ratelimit:chat:"},
		limit:  limit,
		window: window,
	}
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.Context(), ClientIP(r)) {
			w.Header().Set("Retry-After", fmt.Sprintf("%d", int(rl.window.Seconds())))
			writeReply(w, http.StatusTooManyRequests, RateLimitedReply)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Allow counts one hit for key and reports whether it is within the limit.
// WebSocket frames go through here too, so an open socket shares the
// budget of its client's HTTP requests.
func (rl *RateLimiter) Allow(ctx context.Context, key string) bool {
	if rl.limit <= 0 {
		return true
	}

	count, err := rl.store.Hit(ctx, key, rl.window)
	if err != nil {
		// Fail open: a broken limiter must not take the chat down.
		log.Printf("rate limiter unavailable for %s: %v", key, err)
		return true
	}
	return count <= rl.limit
}

// ClientIP drops the port so that every connection from one host shares a
// counter.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// ──── In-memory store ────

type visitor struct {
	count       int
	windowStart time.Time
	lastSeen    time.Time
}

type memoryStore struct {
	mu       sync.Mutex
	visitors map[string]*visitor
}

func newMemoryStore(window time.Duration) *memoryStore {
	s := &memoryStore{visitors: make(map[string]*visitor)}

	// Cleanup goroutine
	go func() {
		for {
			time.Sleep(window)
			s.mu.Lock()
			for ip, v := range s.visitors {
				if time.Since(v.lastSeen) > window {
					delete(s.visitors, ip)
				}
			}
			s.mu.Unlock()
		}
	}()

	return s
}

func (s *memoryStore) Hit(_ context.Context, key string, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	v, exists := s.visitors[key]
	if !exists || now.Sub(v.windowStart) > window {
		s.visitors[key] = &visitor{count: 1, windowStart: now, lastSeen: now}
		return 1, nil
	}

	v.count++
	v.lastSeen = now
	return v.count, nil
}

// ──── Redis store ────

type redisStore struct {
	client redis.Cmdable
	prefix string
}

func (s *redisStore) Hit(ctx context.Context, key string, window time.Duration) (int, error) {
	k := s.prefix + key
	n, err := s.client.Incr(ctx, k).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s: %w", k, err)
	}
	if n == 1 {
		if err := s.client.Expire(ctx, k, window).Err(); err != nil {
			return 0, fmt.Errorf("failed to set expiry on %s: %w", k, err)
		}
	}
	return int(n), nil
}

func writeReply(w http.ResponseWriter, status int, reply string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"reply": reply})
}

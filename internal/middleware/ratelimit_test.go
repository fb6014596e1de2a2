package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func hit(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat", nil)
	req.RemoteAddr = remoteAddr
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestRateLimiter_BlocksAfterLimit(t *testing.T) {
	h := NewRateLimiter(3, time.Minute).Middleware(okHandler)

	for i := 0; i < 3; i++ {
		if rr := hit(h, "10.0.0.1:5000"); rr.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rr.Code)
		}
	}

	rr := hit(h, "10.0.0.1:5001")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected 429 after limit, got %d", rr.Code)
	}
	if rr.Header().Get("Retry-After") != "60" {
		t.Errorf("Expected Retry-After 60, got %q", rr.Header().Get("Retry-After"))
	}
	if !strings.Contains(rr.Body.String(), "Too many requests") {
		t.Errorf("Expected rate limit reply, got %q", rr.Body.String())
	}

	if rr := hit(h, "10.0.0.2:5000"); rr.Code != http.StatusOK {
		t.Errorf("Other clients should not be limited, got %d", rr.Code)
	}
}

func TestRateLimiter_ZeroLimitDisables(t *testing.T) {
	h := NewRateLimiter(0, time.Minute).Middleware(okHandler)

	for i := 0; i < 10; i++ {
		if rr := hit(h, "10.0.0.1:5000"); rr.Code != http.StatusOK {
			t.Fatalf("Request %d: expected 200, got %d", i+1, rr.Code)
		}
	}
}

func TestMemoryStore_WindowResets(t *testing.T) {
	s := &memoryStore{visitors: make(map[string]*visitor)}
	window := 20 * time.Millisecond

	if n, _ := s.Hit(context.Background(), "k", window); n != 1 {
		t.Fatalf("Expected first hit to be 1, got %d", n)
	}
	if n, _ := s.Hit(context.Background(), "k", window); n != 2 {
		t.Fatalf("Expected second hit to be 2, got %d", n)
	}

	time.Sleep(2 * window)

	if n, _ := s.Hit(context.Background(), "k", window); n != 1 {
		t.Errorf("Expected counter to reset after the window, got %d", n)
	}
}

func TestMemoryStore_SteadyTrafficStillResets(t *testing.T) {
	s := &memoryStore{visitors: make(map[string]*visitor)}
	window := 40 * time.Millisecond

	maxCount := 0
	for i := 0; i < 10; i++ {
		n, _ := s.Hit(context.Background(), "k", window)
		if n > maxCount {
			maxCount = n
		}
		time.Sleep(30 * time.Millisecond)
	}

	// 30ms apart with a 40ms window: at most two hits land in one window.
	if maxCount > 2 {
		t.Errorf("Expected the counter to reset every window, reached %d", maxCount)
	}
}

func TestRateLimiter_Allow(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	if !rl.Allow(ctx, "a") || !rl.Allow(ctx, "a") {
		t.Fatal("Expected the first two hits to be allowed")
	}
	if rl.Allow(ctx, "a") {
		t.Error("Expected the third hit to be refused")
	}
	if !rl.Allow(ctx, "b") {
		t.Error("Expected another key to be allowed")
	}
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remoteAddr string
		expected   string
	}{
		{"192.168.1.10:54321", "192.168.1.10"},
		{"[::1]:8080", "::1"},
		{"192.168.1.10", "192.168.1.10"},
	}

	for _, tc := range tests {
		t.Run(tc.remoteAddr, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tc.remoteAddr
			if got := ClientIP(req); got != tc.expected {
				t.Errorf("ClientIP(%q) = %q, want %q", tc.remoteAddr, got, tc.expected)
			}
		})
	}
}

// fakeRedis implements the two commands the limiter uses.
type fakeRedis struct {
	redis.Cmdable
	counts  map[string]int64
	expires map[string]time.Duration
	err     error
}

func (f *fakeRedis) Incr(ctx context.Context, key string) *redis.IntCmd {
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	f.counts[key]++
	return redis.NewIntResult(f.counts[key], nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func TestRedisRateLimiter(t *testing.T) {
	fake := &fakeRedis{counts: map[string]int64{}, expires: map[string]time.Duration{}}
	h := NewRedisRateLimiter(fake, 2, time.Minute).Middleware(okHandler)

	hit(h, "10.0.0.1:1")
	hit(h, "10.0.0.1:2")
	if rr := hit(h, "10.0.0.1:3"); rr.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 on third request, got %d", rr.Code)
	}

	key := "ratelimit:chat:10.0.0.1"
	if fake.counts[key] != 3 {
		t.Errorf("Expected 3 hits under %q, got %v", key, fake.counts)
	}
	if fake.expires[key] != time.Minute {
		t.Errorf("Expected expiry of one minute, got %v", fake.expires[key])
	}
}

func TestRedisRateLimiter_FailsOpen(t *testing.T) {
	fake := &fakeRedis{err: errors.New("connection refused")}
	h := NewRedisRateLimiter(fake, 1, time.Minute).Middleware(okHandler)

	for i := 0; i < 3; i++ {
		if rr := hit(h, "10.0.0.1:1"); rr.Code != http.StatusOK {
			t.Fatalf("Request %d: expected limiter to fail open, got %d", i+1, rr.Code)
		}
	}
}

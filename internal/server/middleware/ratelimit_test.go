package middleware

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func newTestLimiter(limit int) (*RateLimiter, *testclock.Clock) {
	clk := testclock.NewClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	logger := zerolog.Nop()
	return NewRateLimiter(limit, time.Minute, clk, &logger), clk
}

func TestRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		limit    int
		requests int
		allowed  int
	}{
		{"within limit", 10, 5, 5},
		{"at limit", 10, 10, 10},
		{"exceeds limit", 10, 15, 10},
		{"zero limit", 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rl, _ := newTestLimiter(tt.limit)
			allowed := 0
			for i := 0; i < tt.requests; i++ {
				if rl.Allow("10.0.0.1") {
					allowed++
				}
			}
			assert.Equal(t, tt.allowed, allowed)
		})
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	rl, clk := newTestLimiter(2)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))

	clk.Advance(59 * time.Second)
	assert.False(t, rl.Allow("10.0.0.1"))

	clk.Advance(time.Second)
	assert.True(t, rl.Allow("10.0.0.1"))
}

func TestRateLimiter_PerClient(t *testing.T) {
	rl, _ := newTestLimiter(1)

	assert.True(t, rl.Allow("10.0.0.1"))
	assert.False(t, rl.Allow("10.0.0.1"))
	assert.True(t, rl.Allow("10.0.0.2"))
	assert.Equal(t, 2, rl.Visitors())
}

func TestRateLimiter_Cleanup(t *testing.T) {
	rl, clk := newTestLimiter(1)
	rl.Allow("10.0.0.1")

	clk.Advance(90 * time.Second)
	rl.Allow("10.0.0.2")

	clk.Advance(45 * time.Second)
	rl.cleanup()

	assert.Equal(t, 1, rl.Visitors(), "only the idle visitor is dropped")
}

func TestRateLimiter_Concurrent(t *testing.T) {
	rl, _ := newTestLimiter(50)

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if rl.Allow("10.0.0.1") {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(50), allowed.Load())
}

func TestRateLimit_Middleware(t *testing.T) {
	rl, _ := newTestLimiter(1)
	handler := RateLimit(rl)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	send := func(remote, forwarded string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/streaks/backfill", nil)
		req.RemoteAddr = remote
		if forwarded != "" {
			req.Header.Set("X-Forwarded-For", forwarded)
		}
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusAccepted, send("192.168.1.1:1000", "").Code)

	w := send("192.168.1.1:2000", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code, "ports of the same host share a budget")
	assert.Contains(t, w.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusAccepted, send("192.168.1.1:3000", "203.0.113.9, 10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("192.168.1.2:3000", "203.0.113.9").Code)
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		remote    string
		forwarded string
		want      string
	}{
		{"192.168.1.1:12345", "", "192.168.1.1"},
		{"[::1]:8080", "", "::1"},
		{"no-port", "", "no-port"},
		{"192.168.1.1:12345", "203.0.113.9", "203.0.113.9"},
		{"192.168.1.1:12345", " 203.0.113.9 , 10.0.0.1", "203.0.113.9"},
	}

	for _, tt := range tests {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = tt.remote
		if tt.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tt.forwarded)
		}
		assert.Equal(t, tt.want, ClientIP(req), "remote=%q forwarded=%q", tt.remote, tt.forwarded)
	}
}

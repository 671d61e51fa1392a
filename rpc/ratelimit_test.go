package rpc

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterPerClient(t *testing.T) {
	limiter := NewRateLimiter(RateLimit{RequestsPerSecond: 1, Burst: 2})
	now := time.Unix(1_700_000_000, 0)
	limiter.clockNow = func() time.Time { return now }

	require.True(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("a"))
	require.False(t, limiter.Allow("a"))
	require.True(t, limiter.Allow("b"))

	now = now.Add(time.Second)
	require.True(t, limiter.Allow("a"))

	now = now.Add(visitorTTL + time.Second)
	limiter.Allow("c")
	limiter.mu.Lock()
	_, stale := limiter.visitors["a"]
	limiter.mu.Unlock()
	require.False(t, stale)
}

func TestRateLimiterMiddlewareRejects(t *testing.T) {
	cfg := headerConfig()
	cfg.RateLimit = RateLimit{RequestsPerSecond: 0.001, Burst: 1}
	ts := newTestServer(t, cfg, nil)

	res := ts.call(nil, "escrow_count", nil)
	require.Equal(t, http.StatusOK, res.status)
	res = ts.call(nil, "escrow_count", nil)
	require.Equal(t, http.StatusTooManyRequests, res.status)
	require.Equal(t, codeRateLimited, res.resp.Error.Code)

	res = ts.call(map[string]string{"X-Real-IP": "198.51.100.7"}, "escrow_count", nil)
	require.Equal(t, http.StatusOK, res.status)
}

func TestClientID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "203.0.113.9:4242"
	require.Equal(t, "203.0.113.9", clientID(req))

	req.Header.Set("X-Forwarded-For", "192.0.2.1, 10.0.0.1")
	require.Equal(t, "192.0.2.1", clientID(req))

	req.Header.Set("X-Real-IP", "198.51.100.2")
	require.Equal(t, "198.51.100.2", clientID(req))
}

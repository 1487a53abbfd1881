package server

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_MinuteLimit(t *testing.T) {
	rl := NewRateLimiter(2, 0, 0, 0)

	require.NoError(t, rl.Check("client", 0))
	require.NoError(t, rl.Check("client", 0))

	err := rl.Check("client", 0)
	require.Error(t, err)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "minute", rle.Type)
	assert.Equal(t, 2, rle.Limit)
	assert.Greater(t, rle.RetryAfter, time.Duration(0))

	// other clients are tracked independently
	assert.NoError(t, rl.Check("other", 0))
}

func TestRateLimiter_HourLimit(t *testing.T) {
	rl := NewRateLimiter(0, 1, 0, 0)

	require.NoError(t, rl.Check("client", 0))

	err := rl.Check("client", 0)
	var rle *RateLimitError
	require.True(t, errors.As(err, &rle))
	assert.Equal(t, "hour", rle.Type)
}

func TestRateLimiter_DailyRequestQuota(t *testing.T) {
	rl := NewRateLimiter(0, 0, 3, 0)

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Check("client", 0))
	}

	err := rl.Check("client", 0)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "requests", qe.Type)
	assert.Equal(t, int64(3), qe.Limit)
	assert.Equal(t, int64(3), qe.Used)
	assert.False(t, qe.Resets.IsZero())
}

func TestRateLimiter_DailyDataQuota(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 100)

	require.NoError(t, rl.Check("client", 60))
	require.NoError(t, rl.Check("client", 40))

	err := rl.Check("client", 1)
	var qe *QuotaExceededError
	require.True(t, errors.As(err, &qe))
	assert.Equal(t, "data", qe.Type)
	assert.Equal(t, int64(100), qe.Limit)
	assert.Equal(t, int64(100), qe.Used)
}

func TestRateLimiter_ZeroLimitsUnenforced(t *testing.T) {
	rl := NewRateLimiter(0, 0, 0, 0)
	for i := 0; i < 50; i++ {
		require.NoError(t, rl.Check("client", 1<<20))
	}
}

func TestHandleRateLimitError(t *testing.T) {
	st := newRateLimitedServer(t)

	t.Run("rate limit headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		st.handleRateLimitError(w, &RateLimitError{Type: "minute", Limit: 5, RetryAfter: 30 * time.Second})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("Retry-After"))
	})

	t.Run("quota headers", func(t *testing.T) {
		w := httptest.NewRecorder()
		st.handleRateLimitError(w, &QuotaExceededError{
			Type: "requests", Limit: 100, Used: 100,
			Resets: time.Now().Add(time.Hour),
		})

		assert.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.Equal(t, "100", w.Header().Get("X-Quota-Limit"))
		assert.Equal(t, "100", w.Header().Get("X-Quota-Used"))
		assert.NotEmpty(t, w.Header().Get("X-Quota-Resets"))
	})
}

func newRateLimitedServer(t *testing.T) *Server {
	t.Helper()
	cfg := DefaultConfig()
	cfg.RequestsPerMinute = 1
	srv := NewServer(cfg, &stubProcessor{res: serverResult()}, nil, testLogger())
	return srv
}

func TestRateLimitMiddleware(t *testing.T) {
	srv := newRateLimitedServer(t)
	handler := srv.rateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	req.RemoteAddr = "10.0.0.1:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// a different client is not affected
	other := httptest.NewRequest(http.MethodGet, "/documents", nil)
	other.RemoteAddr = "10.0.0.2:1234"
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, other)
	assert.Equal(t, http.StatusOK, w.Code)
}

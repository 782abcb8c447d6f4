package httpmiddleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func serve(h http.Handler, setup func(r *http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if setup != nil {
		setup(req)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func fromAddr(addr string) func(*http.Request) {
	return func(r *http.Request) { r.RemoteAddr = addr }
}

func TestRateLimit_UnderLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 5, Window: time.Minute})(okHandler())

	for i := range 5 {
		w := serve(h, fromAddr("192.168.1.1:12345"))
		assert.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "5", w.Header().Get("X-RateLimit-Limit"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	}
}

func TestRateLimit_OverLimit(t *testing.T) {
	h := RateLimit(RateLimitConfig{Max: 2, Window: time.Minute})(okHandler())

	for range 2 {
		require.Equal(t, http.StatusOK, serve(h, fromAddr("10.0.0.1:9999")).Code)
	}

	w := serve(h, fromAddr("10.0.0.1:9999"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var body struct {
		Code    int    `json:"code"`
		Success bool   `json:"success"`
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, http.StatusTooManyRequests, body.Code)
	assert.False(t, body.Success)
	assert.Equal(t, "TOO_MANY_REQUESTS", body.Error)
	assert.Equal(t, "rate limit exceeded", body.Message)
}

func TestRateLimit_Keys(t *testing.T) {
	tests := []struct {
		name   string
		cfg    RateLimitConfig
		first  func(*http.Request)
		other  func(*http.Request)
		repeat func(*http.Request)
	}{
		{
			name:   "remote address",
			cfg:    RateLimitConfig{Max: 1, Window: time.Minute},
			first:  fromAddr("10.0.0.1:1234"),
			other:  fromAddr("10.0.0.2:1234"),
			repeat: fromAddr("10.0.0.1:5678"),
		},
		{
			name: "custom key",
			cfg: RateLimitConfig{Max: 1, Window: time.Minute, KeyFunc: func(r *http.Request) string {
				return r.Header.Get("Authorization")
			}},
			first:  func(r *http.Request) { r.Header.Set("Authorization", "a") },
			other:  func(r *http.Request) { r.Header.Set("Authorization", "b") },
			repeat: func(r *http.Request) { r.Header.Set("Authorization", "a") },
		},
		{
			name:  "forwarded for",
			cfg:   RateLimitConfig{Max: 1, Window: time.Minute},
			first: func(r *http.Request) { r.Header.Set("X-Forwarded-For", "203.0.113.50, 70.41.3.18") },
			other: func(r *http.Request) { r.Header.Set("X-Real-IP", "203.0.113.51") },
			repeat: func(r *http.Request) {
				r.RemoteAddr = "192.168.1.2:5555"
				r.Header.Set("X-Forwarded-For", "203.0.113.50")
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := RateLimit(tt.cfg)(okHandler())
			assert.Equal(t, http.StatusOK, serve(h, tt.first).Code)
			assert.Equal(t, http.StatusOK, serve(h, tt.other).Code)
			assert.Equal(t, http.StatusTooManyRequests, serve(h, tt.repeat).Code)
		})
	}
}

func TestLimiter_Slides(t *testing.T) {
	l := NewLimiter(4, time.Minute)
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for range 4 {
		require.True(t, l.Allow("k", start).Allowed)
	}
	d := l.Allow("k", start.Add(30*time.Second))
	assert.False(t, d.Allowed)
	assert.Equal(t, start.Add(time.Minute), d.Reset)

	// Half way into the next window half of the previous count still weighs.
	next := start.Add(90 * time.Second)
	assert.True(t, l.Allow("k", next).Allowed)
	assert.True(t, l.Allow("k", next).Allowed)
	assert.False(t, l.Allow("k", next).Allowed)

	// Two idle windows reset the client.
	later := start.Add(5 * time.Minute)
	d = l.Allow("k", later)
	assert.True(t, d.Allowed)
	assert.Equal(t, 3, d.Remaining)

	l.Evict(later.Add(3 * time.Minute))
	assert.Empty(t, l.clients)
}

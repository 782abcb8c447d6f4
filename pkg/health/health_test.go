package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type statusBody struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

type mockPinger struct {
	err error
}

func (m mockPinger) Ping(context.Context) error { return m.err }

func passing() CheckFunc { return func(context.Context) error { return nil } }

func failing(msg string) CheckFunc {
	return func(context.Context) error { return errors.New(msg) }
}

func call(t *testing.T, endpoint http.HandlerFunc) (int, statusBody) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var body statusBody
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func runN(ctx context.Context, p *checker, n int) {
	for range n {
		p.run(ctx)
	}
}

func TestLiveEndpoint(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		runs     int
		wantCode int
	}{
		{"never run", 0, http.StatusOK},
		{"below threshold", 2, http.StatusOK},
		{"at threshold", 3, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New()
			h.AddLivenessCheck("ok", time.Second, passing())
			h.AddLivenessCheck("db", time.Second, failing("connection refused"))
			runN(ctx, h.liveness[1], tt.runs)

			code, body := call(t, h.LiveEndpoint)
			assert.Equal(t, tt.wantCode, code)
			if tt.wantCode == http.StatusOK {
				assert.Equal(t, "ok", body.Status)
				assert.Empty(t, body.Checks)
				return
			}
			assert.Equal(t, "unhealthy", body.Status)
			assert.Equal(t, map[string]string{"db": "connection refused"}, body.Checks)
		})
	}
}

func TestReadyEndpoint(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, passing())
	h.AddReadinessCheck("redis", time.Second, PingCheck(mockPinger{err: errors.New("i/o timeout")}))

	code, body := call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, body.Checks, "_readiness")

	h.SetReady(true)
	code, _ = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, h.IsReady())

	runN(context.Background(), h.readiness[1], 3)
	code, body = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "ping: i/o timeout", body.Checks["redis"])
	assert.NotContains(t, body.Checks, "postgres")
	assert.False(t, h.IsReady())

	h.SetReady(false)
	code, body = call(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Len(t, body.Checks, 2)
}

func TestChecker_Thresholds(t *testing.T) {
	down := true
	h := New()
	h.AddLiveness(Check{
		Name:             "flaky",
		Timeout:          time.Second,
		FailureThreshold: 2,
		SuccessThreshold: 2,
		Func: func(context.Context) error {
			if down {
				return errors.New("down")
			}
			return nil
		},
	})
	p := h.liveness[0]
	ctx := context.Background()

	assert.Nil(t, p.lastErr.Load())
	p.run(ctx)
	assert.True(t, p.healthy.Load())
	p.run(ctx)
	assert.False(t, p.healthy.Load())

	down = false
	p.run(ctx)
	assert.False(t, p.healthy.Load(), "one pass is below the success threshold")
	p.run(ctx)
	assert.True(t, p.healthy.Load())
}

func TestChecker_Timeout(t *testing.T) {
	h := New()
	h.AddLivenessCheck("slow", 10*time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	runN(context.Background(), h.liveness[0], 3)

	_, body := call(t, h.LiveEndpoint)
	assert.Equal(t, context.DeadlineExceeded.Error(), body.Checks["slow"])
}

func TestStartStop(t *testing.T) {
	h := New()
	h.AddLivenessCheck("live", time.Second, failing("err"))
	h.AddReadinessCheck("ready", time.Second, passing())
	h.SetReady(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.Start(ctx, 5*time.Millisecond)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				h.IsReady()
				w := httptest.NewRecorder()
				h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
				w = httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()

	assert.Eventually(t, func() bool {
		_, failed := h.liveness[0].failure()
		return failed
	}, time.Second, 5*time.Millisecond)

	h.Stop()
	h.Stop()
}

func TestCheckers(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, GoroutineCountCheck(100000)(ctx))
	assert.ErrorContains(t, GoroutineCountCheck(0)(ctx), "exceeds threshold")
	assert.NoError(t, GCMaxPauseCheck(time.Hour)(ctx))
	assert.NoError(t, PingCheck(mockPinger{})(ctx))
}

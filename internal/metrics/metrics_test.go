package metrics

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCounters(t *testing.T) {
	m := New()
	m.PixelsProcessed.Inc()
	m.PixelsProcessed.Inc()
	m.PixelsFailed.WithLabelValues("fit").Inc()
	m.BreaksDetected.Add(3)
	m.SegmentsStored.WithLabelValues("sqlite").Add(4)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PixelsProcessed))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PixelsFailed.WithLabelValues("fit")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.BreaksDetected))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.SegmentsStored.WithLabelValues("sqlite")))
}

func TestRouter(t *testing.T) {
	m := New()
	m.BreaksDetected.Inc()
	r := NewRouter(m, func() any { return map[string]int{"processed": 7} })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "landchange_breaks_detected_total 1")

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"processed":7}`, rec.Body.String())

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRouterWithoutStatus(t *testing.T) {
	r := NewRouter(New(), nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServeStopsOnCancel(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, addr, NewRouter(New(), nil), zaptest.NewLogger(t).Sugar()) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/metrics")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}

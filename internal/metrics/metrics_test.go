package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRequest("psi", OutcomeOK)
	m.ObserveRequest("psi", OutcomeOK)
	m.ObserveRequest("psi", OutcomeError)
	m.ObserveUpstream(OutcomeOK, 1500*time.Millisecond)

	assert.InDelta(t, 2, testutil.ToFloat64(m.httpRequests.WithLabelValues("psi", OutcomeOK)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.httpRequests.WithLabelValues("psi", OutcomeError)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.upstreamRequests.WithLabelValues(OutcomeOK)), 0)
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("psi", OutcomeOK)
		m.ObserveUpstream(OutcomeError, time.Second)
	})
}

func TestHandlerExposesCollectors(t *testing.T) {
	t.Parallel()

	m := New()
	m.ObserveRequest("fallback", OutcomeOK)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `psi_http_requests_total{outcome="ok",route="fallback"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

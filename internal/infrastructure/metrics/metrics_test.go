package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.RecordTransition("created", "awaiting_payment")
	m.ObserveGatewayRequest("create_session", "ok", time.Millisecond)
	m.RecordReconciliationFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCountersAreExported(t *testing.T) {
	m := New()
	m.RecordTransition("awaiting_payment", "confirmed")
	m.RecordReconciliationFailure()
	m.RecordSweepExpired(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.transitions.WithLabelValues("awaiting_payment", "confirmed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.reconciliations))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.sweepExpired))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "reconciliation_failures_total 1"))
}

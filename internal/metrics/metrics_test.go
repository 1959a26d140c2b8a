package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCounters(t *testing.T) {
	m := New("agro")

	m.OrderCreated(20 * time.Millisecond)
	m.OrderRejected("stock")
	m.OrderRejected("stock")
	m.MintAttempt("order", "collision")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.OrdersCreated))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.OrdersRejected.WithLabelValues("stock")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MintAttempts.WithLabelValues("order", "collision")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.OrderCreated(time.Second)
		m.OrderRejected("validation")
		m.MintAttempt("prod", "ok")
		m.HTTPRequest("GET", "/orders", "200", time.Millisecond)
	})
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New("agro")
	m.HTTPRequest("POST", "/orders", "200", 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `agro_http_requests_total{method="POST",route="/orders",status="200"} 1`)
}

package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_ObserveCeremony(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.ObserveCeremony("create", "success", 2*time.Second)
	c.ObserveCeremony("create", "success", 3*time.Second)
	c.ObserveCeremony("get", "failure", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(c.ceremonies.WithLabelValues("create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.ceremonies.WithLabelValues("get", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(c.ceremonyTime))
}

func TestCollector_RecordSLABreach(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSLABreach(16 * time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.slaBreaches))
}

func TestCollector_Provider(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderCall("biconomy", "sponsor", "failure")
	c.RecordProviderCall("pimlico", "sponsor", "success")
	c.RecordProviderHealth("biconomy", false)
	c.RecordProviderHealth("pimlico", true)

	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerCalls.WithLabelValues("biconomy", "sponsor", "failure")))
	assert.Equal(t, 0.0, testutil.ToFloat64(c.providerHealth.WithLabelValues("biconomy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.providerHealth.WithLabelValues("pimlico")))
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordSLABreach(20 * time.Second)

	w := httptest.NewRecorder()
	Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body, err := io.ReadAll(w.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "passkeywallet_wallet_sla_breaches_total 1")
}

package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMetricsRegistered verifies that all metrics are registered in the
// default registry once observed.
func TestMetricsRegistered(t *testing.T) {
	EmbeddingsTotal.WithLabelValues("ok").Inc()
	BatchDuration.Observe(0.2)
	ProviderRequestDuration.Observe(0.1)
	ProviderErrors.Add(0)
	SearchRequestsTotal.WithLabelValues("combined").Inc()
	SearchDuration.WithLabelValues("combined").Observe(0.01)

	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)

	expected := map[string]bool{
		"tickerscout_embeddings_total":                  false,
		"tickerscout_embedding_batch_duration_seconds":  false,
		"tickerscout_provider_request_duration_seconds": false,
		"tickerscout_provider_errors_total":             false,
		"tickerscout_search_requests_total":             false,
		"tickerscout_search_duration_seconds":           false,
	}
	for _, mf := range families {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}
	for name, found := range expected {
		assert.True(t, found, "metric %q not found in default registry", name)
	}
}

func TestCounterIncrements(t *testing.T) {
	before := counterValue(t, SearchRequestsTotal, "text_match")
	SearchRequestsTotal.WithLabelValues("text_match").Inc()
	assert.Equal(t, before+1, counterValue(t, SearchRequestsTotal, "text_match"))
}

func TestNewServer(t *testing.T) {
	EmbeddingsTotal.WithLabelValues("failed").Inc()

	srv := NewServer(":0")
	assert.Equal(t, ":0", srv.Addr)

	rec := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `tickerscout_embeddings_total{status="failed"}`)
}

// counterValue reads the current value of a CounterVec for the given labels.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	c, err := cv.GetMetricWithLabelValues(labels...)
	require.NoError(t, err)
	require.NoError(t, c.(prometheus.Metric).Write(m))
	return m.GetCounter().GetValue()
}

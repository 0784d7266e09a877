// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


// Package observability provides Prometheus metrics for the embedding
// pipeline, the embedding provider and the search service.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ProviderBuckets covers embedding API round trips from 50ms to 30s.
var ProviderBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30}

var (
	// EmbeddingsTotal counts pipeline entities by outcome (ok/failed).
	EmbeddingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerscout_embeddings_total",
			Help: "Entities processed by the embedding pipeline",
		},
		[]string{"status"},
	)

	// BatchDuration records wall time per pipeline batch in seconds,
	// excluding the inter-batch delay.
	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tickerscout_embedding_batch_duration_seconds",
			Help:    "Embedding batch duration",
			Buckets: ProviderBuckets,
		},
	)

	// ProviderRequestDuration records embedding API latency in seconds.
	ProviderRequestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tickerscout_provider_request_duration_seconds",
			Help:    "Embedding provider latency",
			Buckets: ProviderBuckets,
		},
	)

	// ProviderErrors counts failed embedding API calls.
	ProviderErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickerscout_provider_errors_total",
			Help: "Embedding provider failures",
		},
	)

	// SearchRequestsTotal counts searches by the tier that served them.
	SearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickerscout_search_requests_total",
			Help: "Searches by serving tier",
		},
		[]string{"tier"},
	)

	// SearchDuration records search latency in seconds by serving tier.
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tickerscout_search_duration_seconds",
			Help:    "Search duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		EmbeddingsTotal,
		BatchDuration,
		ProviderRequestDuration,
		ProviderErrors,
		SearchRequestsTotal,
		SearchDuration,
	)
}

// NewServer returns an HTTP server exposing the default registry at /metrics.
func NewServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

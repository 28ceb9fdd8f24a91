// Package metrics exposes Prometheus counters for the research pipeline and
// an optional /metrics HTTP server.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_queries_total",
			Help: "Total research queries by terminal status",
		},
		[]string{"status"},
	)

	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "research_stage_duration_seconds",
			Help:    "Duration of each pipeline stage in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	SourceExtractionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_source_extractions_total",
			Help: "Per-source extraction outcomes",
		},
		[]string{"outcome"},
	)

	SynthesisCallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "research_synthesis_calls_total",
			Help: "LLM synthesis attempts by provider and outcome",
		},
		[]string{"provider", "outcome"},
	)
)

// RecordQuery increments the terminal-status counter for a finished query.
func RecordQuery(status string) {
	QueriesTotal.WithLabelValues(status).Inc()
}

// RecordStage observes how long a pipeline stage took.
func RecordStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordExtraction counts one per-source extraction outcome. The outcome is
// "success" or a failure reason.
func RecordExtraction(outcome string) {
	SourceExtractionsTotal.WithLabelValues(outcome).Inc()
}

// RecordSynthesis counts one LLM generation attempt. The outcome is
// "success", "error" or "empty".
func RecordSynthesis(provider, outcome string) {
	SynthesisCallsTotal.WithLabelValues(provider, outcome).Inc()
}

// Server encapsulates an HTTP server for Prometheus metrics.
type Server struct {
	srv *http.Server
}

// Start begins listening on the specified port and exposes /metrics.
func Start(port int) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		// Suppress the error from intentional shutdown
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server failed: %v\n", err)
		}
	}()

	return &Server{srv: srv}
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

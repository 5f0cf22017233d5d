// Package metrics exposes pipeline counters to Prometheus
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pricefeed/backend/internal/domain"
)

// Record outcomes
const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Recorder counts normalization outcomes and batch timings.
// It implements usecase.PipelineObserver.
type Recorder struct {
	registry *prometheus.Registry
	records  *prometheus.CounterVec
	mapping  *prometheus.CounterVec
	batches  *prometheus.HistogramVec
}

// NewRecorder creates a recorder on its own registry, with Go runtime and
// process collectors included
func NewRecorder() *Recorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Recorder{
		registry: registry,
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_records_total",
			Help: "Raw records processed, by shop and outcome.",
		}, []string{"shop", "outcome"}),
		mapping: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pricefeed_mapping_total",
			Help: "Normalized products, by shop and category mapping status.",
		}, []string{"shop", "status"}),
		batches: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pricefeed_batch_duration_seconds",
			Help:    "Time spent normalizing one batch.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		}, []string{"shop"}),
	}
	registry.MustRegister(r.records, r.mapping, r.batches)
	return r
}

// ObserveResult counts one record
func (r *Recorder) ObserveResult(shop string, res domain.NormalizationResult) {
	if !res.Success || res.Product == nil {
		r.records.WithLabelValues(shop, OutcomeFailed).Inc()
		return
	}
	r.records.WithLabelValues(shop, OutcomeSuccess).Inc()
	r.mapping.WithLabelValues(shop, string(res.Product.MappingStatus)).Inc()
}

// ObserveBatch records the duration of one batch
func (r *Recorder) ObserveBatch(shop string, _ int, elapsed time.Duration) {
	r.batches.WithLabelValues(shop).Observe(elapsed.Seconds())
}

// Handler serves the registry in the Prometheus exposition format
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

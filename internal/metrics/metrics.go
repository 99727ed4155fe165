// Package metrics exports check progress as Prometheus metrics.
//
// A Recorder is a harness.Observer. Each Recorder owns its registry, so
// concurrent checks in one process never share series.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/interleave/internal/harness"
)

const namespace = "interleave"

// Recorder collects the metrics of one check.
type Recorder struct {
	registry *prometheus.Registry

	iterations    prometheus.Counter
	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	verifications *prometheus.CounterVec
	verifyLatency prometheus.Histogram
	cacheHits     prometheus.Gauge
	cacheMisses   prometheus.Gauge
	passed        prometheus.Gauge
	elapsed       prometheus.Gauge
}

var _ harness.Observer = (*Recorder)(nil)

// New creates a recorder whose series carry subject and verifier labels.
func New(subject, verifier string) *Recorder {
	labels := prometheus.Labels{"subject": subject, "verifier": verifier}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		iterations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "iterations_total",
			Help:        "Scenarios generated and started.",
			ConstLabels: labels,
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "runs_total",
			Help:        "Scenario runs by outcome (completed, fault, inconclusive).",
			ConstLabels: labels,
		}, []string{"outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "run_duration_seconds",
			Help:        "Wall-clock duration of one scenario run.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00005, 4, 10),
		}, []string{"outcome"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "verifications_total",
			Help:        "Verifier calls by verdict.",
			ConstLabels: labels,
		}, []string{"verdict"}),
		verifyLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "verify_duration_seconds",
			Help:        "Latency of one verifier call, cache hits included.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(0.00001, 4, 10),
		}),
		cacheHits: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "verifier_cache_hits",
			Help:        "Verdicts served from the per-scenario cache.",
			ConstLabels: labels,
		}),
		cacheMisses: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "verifier_cache_misses",
			Help:        "Verdicts that required a search.",
			ConstLabels: labels,
		}),
		passed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "check_passed",
			Help:        "1 if the last check passed, 0 otherwise.",
			ConstLabels: labels,
		}),
		elapsed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "check_duration_seconds",
			Help:        "Wall-clock duration of the last check.",
			ConstLabels: labels,
		}),
	}
	r.registry.MustRegister(
		r.iterations,
		r.runs,
		r.runDuration,
		r.verifications,
		r.verifyLatency,
		r.cacheHits,
		r.cacheMisses,
		r.passed,
		r.elapsed,
	)
	return r
}

// Registry returns the registry holding the recorder's metrics.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// IterationStarted implements harness.Observer.
func (r *Recorder) IterationStarted(int) {
	r.iterations.Inc()
}

// RunFinished implements harness.Observer.
func (r *Recorder) RunFinished(outcome harness.RunOutcome, elapsed time.Duration) {
	r.runs.WithLabelValues(string(outcome)).Inc()
	r.runDuration.WithLabelValues(string(outcome)).Observe(elapsed.Seconds())
}

// Verified implements harness.Observer.
func (r *Recorder) Verified(ok bool, elapsed time.Duration) {
	verdict := "accepted"
	if !ok {
		verdict = "rejected"
	}
	r.verifications.WithLabelValues(verdict).Inc()
	r.verifyLatency.Observe(elapsed.Seconds())
}

// ObserveReport records the summary of a finished check.
func (r *Recorder) ObserveReport(rep *harness.Report) {
	r.cacheHits.Set(float64(rep.CacheHits))
	r.cacheMisses.Set(float64(rep.CacheMisses))
	r.elapsed.Set(rep.Elapsed.Seconds())
	if rep.Passed() {
		r.passed.Set(1)
	} else {
		r.passed.Set(0)
	}
}

// WriteTextfile writes every metric to path in the text exposition format,
// for collection by a node exporter textfile collector. The file is
// replaced atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

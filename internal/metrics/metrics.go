// Package metrics exports ETL run and batch outcomes as Prometheus metrics.
package metrics

import (
	"github.com/BartekS5/movielens-etl/pkg/models"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "movielens_etl"

const (
	MetricRecordsLoaded = "records_loaded_total"
	MetricBatches       = "batches_total"
	MetricRuns          = "runs_total"
	MetricRunErrors     = "run_errors_total"
	MetricRunDuration   = "run_duration_seconds"
)

// Recorder implements etl.Recorder on top of a Prometheus registerer.
type Recorder struct {
	recordsLoaded *prometheus.CounterVec
	batches       *prometheus.CounterVec
	runs          *prometheus.CounterVec
	runErrors     prometheus.Counter
	runDuration   prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		recordsLoaded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRecordsLoaded,
			Help:      "Records accepted by the relational store, by record kind.",
		}, []string{"kind"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricBatches,
			Help:      "Batches sent to the relational store, by record kind and result.",
		}, []string{"kind", "result"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRuns,
			Help:      "Finished ETL runs by status.",
		}, []string{"status"}),
		runErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRunErrors,
			Help:      "Record and batch errors counted by ETL runs.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricRunDuration,
			Help:      "Wall-clock duration of ETL runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
	reg.MustRegister(r.recordsLoaded, r.batches, r.runs, r.runErrors, r.runDuration)
	return r
}

func (r *Recorder) ObserveBatch(kind string, rows int, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	r.batches.WithLabelValues(kind, result).Inc()
}

func (r *Recorder) ObserveRun(stats *models.RunStats) {
	r.runs.WithLabelValues(string(stats.Status)).Inc()
	r.runErrors.Add(float64(stats.Errors))
	r.runDuration.Observe(stats.DurationSeconds)
	r.recordsLoaded.WithLabelValues("items").Add(float64(stats.ItemsLoaded))
	r.recordsLoaded.WithLabelValues("actors").Add(float64(stats.ActorsLoaded))
	r.recordsLoaded.WithLabelValues("interactions").Add(float64(stats.InteractionsLoaded))
}

// Package telemetry exports detection metrics to Prometheus.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"collision-batcher/internal/collision"
)

// Metrics with bounded cardinality: detector is "batched" or "cpu", kind is
// "self" or "cross".
var (
	tickDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collision_tick_duration_seconds",
		Help:    "Time spent in one detection tick",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.5},
	}, []string{"detector"})

	tickFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collision_tick_failures_total",
		Help: "Detection ticks aborted before producing pairs",
	}, []string{"detector"})

	tickPairs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "collision_tick_pairs",
		Help: "Colliding pairs found by the last tick",
	}, []string{"detector"})

	tickJobs = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "collision_tick_jobs",
		Help: "Batch jobs run by the last tick",
	}, []string{"detector"})

	jobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "collision_job_duration_seconds",
		Help:    "Time from prepare to collected for one batch job",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	}, []string{"kind"})

	jobPairs = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collision_job_pairs_total",
		Help: "Pairs collected from batch jobs before dedup",
	}, []string{"kind"})

	truncatedResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collision_truncated_results_total",
		Help: "Kernel results dropped because an output buffer was full",
	})

	maxBatchSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collision_max_batch_size",
		Help: "Current max entities per batch range",
	})

	populationSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collision_population_size",
		Help: "Entities in the last tick's snapshot",
	})

	sensorContacts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "collision_sensor_contacts",
		Help: "Sensor-body contacts in the last tick",
	})

	// Journal metrics
	journalTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_events_total",
		Help: "Total events journaled",
	})

	journalDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_events_dropped_total",
		Help: "Events dropped due to rate limiting or buffer full",
	})
)

// Prometheus implements collision.Telemetry on the default registry.
type Prometheus struct{}

var _ collision.Telemetry = Prometheus{}

// ObserveJob implements collision.Telemetry.
func (Prometheus) ObserveJob(kind string, pairs int, elapsed time.Duration) {
	jobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
	jobPairs.WithLabelValues(kind).Add(float64(pairs))
}

// ObserveTruncation implements collision.Telemetry.
func (Prometheus) ObserveTruncation(dropped uint64) {
	truncatedResults.Add(float64(dropped))
}

// ObserveTick implements collision.Telemetry.
func (Prometheus) ObserveTick(detector string, jobs, pairs int, elapsed time.Duration) {
	tickDuration.WithLabelValues(detector).Observe(elapsed.Seconds())
	tickJobs.WithLabelValues(detector).Set(float64(jobs))
	tickPairs.WithLabelValues(detector).Set(float64(pairs))
}

// ObserveTickFailure implements collision.Telemetry.
func (Prometheus) ObserveTickFailure(detector string) {
	tickFailures.WithLabelValues(detector).Inc()
}

// SetMaxBatchSize implements collision.Telemetry.
func (Prometheus) SetMaxBatchSize(size int) {
	maxBatchSize.Set(float64(size))
}

// UpdatePopulation updates the population gauge
func UpdatePopulation(count int) {
	populationSize.Set(float64(count))
}

// UpdateSensorContacts updates the sensor contact gauge
func UpdateSensorContacts(count int) {
	sensorContacts.Set(float64(count))
}

// RecordJournalEvent counts one journaled event
func RecordJournalEvent() {
	journalTotal.Inc()
}

// RecordJournalDropped counts one dropped event
func RecordJournalDropped() {
	journalDropped.Inc()
}

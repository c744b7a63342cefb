// Package telemetry is the counters/telemetry façade (C9): emits per-pass
// counts via Prometheus, per spec.md §4's component table and §6's
// configuration surface. Modeled on the teacher's internal/metrics package.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline's Prometheus instruments. Construct one per
// process with NewMetrics(prometheus.DefaultRegisterer) (or a test
// registry) and pass it through the driver.
type Metrics struct {
	RecordsProcessed *prometheus.CounterVec
	RecordsDeleted   *prometheus.CounterVec
	RecordsMerged    *prometheus.CounterVec
	ThroughputGauge  *prometheus.GaugeVec
	PassDuration     *prometheus.HistogramVec
	TransportErrors  *prometheus.CounterVec
}

// NewMetrics registers the pipeline's instruments against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RecordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recidx_records_processed_total",
			Help: "Total number of records projected and added to the index.",
		}, []string{"pass", "source_id"}),
		RecordsDeleted: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recidx_records_deleted_total",
			Help: "Total number of delete operations enqueued.",
		}, []string{"pass", "source_id"}),
		RecordsMerged: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recidx_records_merged_total",
			Help: "Total number of live dedup-group members folded into merged documents; component parts merged into host records are not counted.",
		}, []string{"source_id"}),
		ThroughputGauge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "recidx_records_per_second",
			Help: "Moving records/second throughput, per pass.",
		}, []string{"pass"}),
		PassDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "recidx_pass_duration_seconds",
			Help:    "Wall-clock duration of a completed indexing pass.",
			Buckets: prometheus.DefBuckets,
		}, []string{"pass"}),
		TransportErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "recidx_transport_errors_total",
			Help: "Total number of fatal backend transport errors.",
		}, []string{"operation"}),
	}
}

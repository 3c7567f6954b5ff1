// Package metrics provides Prometheus metrics for the conversion pipeline:
//   - nomenclator_jobs_total: Counter with catalog and status labels
//   - nomenclator_job_duration_seconds: Histogram with catalog label
//   - nomenclator_jobs_in_flight: Gauge for running parse jobs
//   - nomenclator_download_bytes_total: Counter of dump bytes received
//   - nomenclator_last_success_timestamp_seconds: Gauge set when a run ends cleanly
//
// All metrics are registered with the Prometheus default registry during
// package initialization.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nomenclator_jobs_total",
			Help: "Finished conversion jobs by outcome",
		},
		[]string{"catalog", "status"},
	)

	JobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nomenclator_job_duration_seconds",
			Help:    "Conversion job latency",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"catalog"},
	)

	JobsInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nomenclator_jobs_in_flight",
			Help: "Conversion jobs currently running",
		},
	)

	DownloadBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "nomenclator_download_bytes_total",
			Help: "Bytes of dump archive received",
		},
	)

	LastSuccessTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "nomenclator_last_success_timestamp_seconds",
			Help: "Unix time of the last run that finished without failures",
		},
	)
)

func init() {
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(JobDuration)
	prometheus.MustRegister(JobsInFlight)
	prometheus.MustRegister(DownloadBytesTotal)
	prometheus.MustRegister(LastSuccessTimestamp)
}

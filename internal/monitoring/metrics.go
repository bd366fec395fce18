package monitoring

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
)

var (
	SyncJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_jobs_total",
			Help: "Total number of sync jobs finalized by status",
		},
		[]string{"status"},
	)
	SyncDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sync_job_duration_seconds",
			Help:    "Duration of completed and failed sync jobs in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~34min
		},
	)
	ProviderPagesFetched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pco_pages_fetched_total",
			Help: "Total number of provider pages fetched by resource",
		},
		[]string{"resource"},
	)
	RecordsSkipped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_records_skipped_total",
			Help: "Malformed provider records skipped during reconciliation",
		},
		[]string{"resource"},
	)
)

func InitMetrics() {
	collectors := map[string]prometheus.Collector{
		"SyncJobsTotal":        SyncJobsTotal,
		"SyncDuration":         SyncDuration,
		"ProviderPagesFetched": ProviderPagesFetched,
		"RecordsSkipped":       RecordsSkipped,
	}
	for name, c := range collectors {
		if err := prometheus.Register(c); err != nil {
			log.Error().Err(err).Msgf("Failed to register %s metric", name)
		}
	}
}

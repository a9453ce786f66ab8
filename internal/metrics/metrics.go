package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Content store metrics
	UploadsStoredTotal   *prometheus.CounterVec
	UploadsRejectedTotal *prometheus.CounterVec
	UploadBytes          *prometheus.HistogramVec
	FilesDeletedTotal    *prometheus.CounterVec

	// Saga metrics
	SagaOutcomesTotal         *prometheus.CounterVec
	SagaDurationSeconds       *prometheus.HistogramVec
	CompensationFailuresTotal *prometheus.CounterVec

	// Playlist metrics
	BulkAddDuplicatesTotal prometheus.Counter

	// Maintenance metrics
	SweepRemovedTotal    *prometheus.CounterVec
	SweepDurationSeconds prometheus.Histogram

	// Health metrics
	HealthStatus       *prometheus.GaugeVec
	StorageUsedPercent *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance registered with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UploadsStoredTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecrate_uploads_stored_total",
				Help: "Total number of uploads accepted by a content store",
			},
			[]string{"store", "content_type"},
		),
		UploadsRejectedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecrate_uploads_rejected_total",
				Help: "Total number of uploads rejected by a content store",
			},
			[]string{"store", "reason"},
		),
		UploadBytes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tunecrate_upload_bytes",
				Help:    "Size of accepted uploads in bytes",
				Buckets: prometheus.ExponentialBuckets(16*1024, 4, 8),
			},
			[]string{"store"},
		),
		FilesDeletedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecrate_files_deleted_total",
				Help: "Total number of stored files deleted",
			},
			[]string{"store"},
		),

		SagaOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecrate_song_saga_outcomes_total",
				Help: "Song creation saga outcomes by terminal state and the last state reached",
			},
			[]string{"outcome", "state"},
		),
		SagaDurationSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tunecrate_song_saga_duration_seconds",
				Help: "Duration of song creation sagas in seconds",
			},
			[]string{"outcome"},
		),
		CompensationFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecrate_compensation_failures_total",
				Help: "Total number of undo steps that failed during saga compensation",
			},
			[]string{"step"},
		),

		BulkAddDuplicatesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "tunecrate_playlist_bulk_add_duplicates_total",
				Help: "Total number of songs skipped by bulk add because they were already members",
			},
		),

		SweepRemovedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tunecrate_sweep_removed_total",
				Help: "Total number of orphaned files removed by the maintenance sweep",
			},
			[]string{"kind"},
		),
		SweepDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name: "tunecrate_sweep_duration_seconds",
				Help: "Duration of maintenance sweeps in seconds",
			},
		),

		HealthStatus: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunecrate_health_status",
				Help: "Health status of dependencies (1=ok, 0=down)",
			},
			[]string{"dependency"},
		),
		StorageUsedPercent: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "tunecrate_storage_used_percent",
				Help: "Percentage of the filesystem used under each store root",
			},
			[]string{"root"},
		),
	}
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics registered with the default
// Prometheus registry. Registration happens once.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

		// Initialize health metrics with default values
		defaultMetrics.HealthStatus.WithLabelValues("db").Set(0)
		defaultMetrics.HealthStatus.WithLabelValues("redis").Set(0)
	})
	return defaultMetrics
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Run metrics
var (
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_runs_total",
			Help: "Total number of pipeline runs by outcome",
		},
		[]string{"status"}, // "success", "partial", "failed"
	)

	RunLastTimestamp = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_last_run_timestamp",
			Help: "Unix timestamp of the last pipeline run completion",
		},
	)

	RunLastDuration = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_last_run_duration_seconds",
			Help: "Duration of the last pipeline run in seconds",
		},
	)
)

// Stage metrics
var (
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300, 900},
		},
		[]string{"stage"},
	)

	StageFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_stage_files_total",
			Help: "Files handled per stage by status",
		},
		[]string{"stage", "status"}, // status: "processed", "skipped", "failed"
	)
)

// Transcoder metrics
var (
	TranscodeAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_transcode_attempts_total",
			Help: "Encoder invocations by strategy and outcome",
		},
		[]string{"strategy", "outcome"}, // strategy: "reencode", "stream_copy"
	)

	TranscodeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_transcode_duration_seconds",
			Help:    "Wall time spent transcoding one video, fallback included",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
	)
)

// Image metrics
var (
	ImagesCompressedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_images_compressed_total",
			Help: "Images compressed by backend",
		},
		[]string{"backend"}, // "vips", "imaging"
	)

	CompressedBytesSaved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_compressed_bytes_saved_total",
			Help: "Bytes saved by image compression (source size minus output size)",
		},
	)

	ThumbnailGenerationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_thumbnail_generations_total",
			Help: "Total number of thumbnail generations",
		},
		[]string{"type", "status"}, // status: "generated", "exists", "failed"
	)

	ThumbnailGenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_thumbnail_generation_duration_seconds",
			Help:    "Thumbnail generation duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"type"},
	)

	ProbeFallbacksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_probe_fallbacks_total",
			Help: "Dimension probes that failed and used the default dimensions",
		},
	)
)

// Manifest metrics
var (
	ManifestEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_pipeline_manifest_entries",
			Help: "Entries in the last written manifest by type",
		},
		[]string{"type"},
	)
)

// Memory metrics
var (
	MemoryUsageRatio = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_memory_usage_ratio",
			Help: "Heap usage as a fraction of the memory limit",
		},
	)

	MemoryPaused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "media_pipeline_memory_paused",
			Help: "1 while new files are held back by memory pressure",
		},
	)

	MemoryGCPauses = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "media_pipeline_memory_gc_pauses_total",
			Help: "Times memory pressure paused processing and forced a GC",
		},
	)
)

// Filesystem metrics
var (
	FilesystemOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "media_pipeline_filesystem_operation_duration_seconds",
			Help:    "Filesystem operation duration in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		},
		[]string{"operation"},
	)

	FilesystemOperationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_filesystem_operation_errors_total",
			Help: "Filesystem operations that returned an error",
		},
		[]string{"operation"},
	)

	FilesystemRetryAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_filesystem_retry_attempts_total",
			Help: "Retries after an NFS stale file handle",
		},
		[]string{"operation"},
	)

	FilesystemRetrySuccess = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_filesystem_retry_success_total",
			Help: "Operations that succeeded after at least one retry",
		},
		[]string{"operation"},
	)

	FilesystemRetryFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_filesystem_retry_failures_total",
			Help: "Operations that failed after exhausting retries",
		},
		[]string{"operation"},
	)

	FilesystemStaleErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "media_pipeline_filesystem_stale_errors_total",
			Help: "NFS stale file handle errors seen",
		},
		[]string{"operation"},
	)
)

// Application info metric
var (
	AppInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "media_pipeline_app_info",
			Help: "Application information",
		},
		[]string{"version", "commit", "go_version"},
	)
)

// SetAppInfo sets the application info metric
func SetAppInfo(version, commit, goVersion string) {
	AppInfo.WithLabelValues(version, commit, goVersion).Set(1)
}

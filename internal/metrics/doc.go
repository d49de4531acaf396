// Package metrics provides Prometheus instrumentation for the media pipeline.
//
// All metrics are prefixed with "media_pipeline_" and registered on the default
// registry. Because the pipeline is a batch job with no HTTP surface, metrics are
// exported once at the end of a run with WriteTextfile, in the format consumed by
// node_exporter's textfile collector.
//
// # Metric Categories
//
// ## Run Metrics
//   - RunsTotal: Counter of runs by outcome (success, partial, failed)
//   - RunLastTimestamp / RunLastDuration: Gauges for the last completed run
//
// ## Stage Metrics
//   - StageDuration: Histogram of stage wall time
//   - StageFilesTotal: Counter of files per stage by status (processed, skipped, failed)
//
// ## Transcoder Metrics
//   - TranscodeAttemptsTotal: Encoder invocations by strategy (reencode, stream_copy)
//     and outcome (success, recoverable, fatal)
//   - TranscodeDuration: Histogram of per-video wall time
//
// ## Image Metrics
//   - ImagesCompressedTotal, CompressedBytesSaved
//   - ThumbnailGenerationsTotal, ThumbnailGenerationDuration
//   - ProbeFallbacksTotal: dimension probes that fell back to defaults
//
// ## Manifest and Filesystem Metrics
//   - ManifestEntries: Gauge by type
//   - Filesystem*: per-operation duration, errors and NFS retry counters, fed by
//     the filesystem.Observer returned from NewFilesystemObserver
//
// Call InitializeMetrics at startup so every label combination is exported even
// when it stays at zero.
package metrics

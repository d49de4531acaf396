package metrics

// Stages lists the pipeline stage labels in execution order.
var Stages = []string{
	"ensure-output-dir",
	"convert-heic",
	"transcode-mov",
	"mp4-passthrough",
	"compress-images",
	"purge-aae",
	"rescan",
	"thumbnails",
	"write-manifest",
}

// InitializeMetrics pre-populates all expected label combinations so that
// every metric is present in the first export.
func InitializeMetrics() {
	for _, stage := range Stages {
		StageDuration.WithLabelValues(stage)
		for _, status := range []string{"processed", "skipped", "failed"} {
			StageFilesTotal.WithLabelValues(stage, status)
		}
	}

	for _, strategy := range []string{"reencode", "stream_copy"} {
		for _, outcome := range []string{"success", "recoverable", "fatal"} {
			TranscodeAttemptsTotal.WithLabelValues(strategy, outcome)
		}
	}

	for _, backend := range []string{"vips", "imaging"} {
		ImagesCompressedTotal.WithLabelValues(backend)
	}

	for _, t := range []string{"image", "video"} {
		ThumbnailGenerationDuration.WithLabelValues(t)
		ManifestEntries.WithLabelValues(t)
		for _, status := range []string{"generated", "exists", "failed"} {
			ThumbnailGenerationsTotal.WithLabelValues(t, status)
		}
	}

	for _, op := range []string{"stat", "read", "readdir", "remove"} {
		FilesystemOperationDuration.WithLabelValues(op)
		FilesystemOperationErrors.WithLabelValues(op)
		FilesystemRetryAttempts.WithLabelValues(op)
		FilesystemRetrySuccess.WithLabelValues(op)
		FilesystemRetryFailures.WithLabelValues(op)
		FilesystemStaleErrors.WithLabelValues(op)
	}

	for _, status := range []string{"success", "partial", "failed"} {
		RunsTotal.WithLabelValues(status)
	}
}

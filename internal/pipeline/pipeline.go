package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"media-pipeline/internal/journal"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/media"
	"media-pipeline/internal/metrics"
	"media-pipeline/internal/transcoder"
	"media-pipeline/internal/workers"

	"github.com/google/uuid"
)

// HEICConverter writes a JPEG for an HEIC source.
type HEICConverter interface {
	Convert(src, dst string) error
}

// VideoTranscoder writes an MP4 for a MOV source.
type VideoTranscoder interface {
	Transcode(ctx context.Context, src, dst string) (*transcoder.TranscodeResult, error)
}

// ImageCompressor writes the marked, size-capped copy of an image.
type ImageCompressor interface {
	Compress(src string) (*media.CompressResult, error)
}

// Recorder receives the run lifecycle and per-file events. *journal.Journal
// implements it.
type Recorder interface {
	StartRun(ctx context.Context, mediaDir string) (string, error)
	RecordEvent(ctx context.Context, e journal.Event) error
	FinishRun(ctx context.Context, runID string, s journal.Summary) error
}

// Config wires a Pipeline. Nil components get their production defaults.
type Config struct {
	MediaDir string
	Workers  int

	HEIC       HEICConverter
	Transcoder VideoTranscoder
	Compressor ImageCompressor
	Recorder   Recorder

	// Gate, when set, is waited on before each file starts.
	Gate workers.Gate
}

// Pipeline runs the stages over one directory.
type Pipeline struct {
	dir        string
	heic       HEICConverter
	video      VideoTranscoder
	compressor ImageCompressor
	thumbs     *media.ThumbnailGenerator
	recorder   Recorder
	pool       *workers.Pool
}

// New builds a pipeline from cfg.
func New(cfg Config) *Pipeline {
	p := &Pipeline{
		dir:        cfg.MediaDir,
		heic:       cfg.HEIC,
		video:      cfg.Transcoder,
		compressor: cfg.Compressor,
		recorder:   cfg.Recorder,
		thumbs:     media.NewThumbnailGenerator(filepath.Join(cfg.MediaDir, media.ThumbnailDir)),
		pool:       workers.NewPool(cfg.Workers, cfg.Gate),
	}
	if p.heic == nil {
		p.heic = media.NewHEICConverter(nil)
	}
	if p.video == nil {
		p.video = transcoder.New(transcoder.NewFFmpegRunner("ffmpeg"))
	}
	if p.compressor == nil {
		p.compressor = media.NewCompressor(media.IsVipsAvailable())
	}
	if p.recorder == nil {
		p.recorder = nopRecorder{}
	}
	return p
}

// Dir returns the media directory.
func (p *Pipeline) Dir() string {
	return p.dir
}

// Run executes every stage once. The returned error is non-nil only when the
// run was aborted; per-file failures are in Report.Err.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	report := &Report{MediaDir: p.dir, StartedAt: time.Now()}

	runID, err := p.recorder.StartRun(ctx, p.dir)
	if err != nil {
		logging.Warn("Journal unavailable for this run: %v", err)
		p.recorder = nopRecorder{}
		runID, _ = nopRecorder{}.StartRun(ctx, p.dir)
	}
	report.RunID = runID
	logging.Info("Starting run %s on %s (workers: %d)", runID, p.dir, p.pool.Size())

	runErr := p.runStages(ctx, report)
	report.Duration = time.Since(report.StartedAt)

	status := report.Status(runErr)
	metrics.RunsTotal.WithLabelValues(status).Inc()
	metrics.RunLastTimestamp.SetToCurrentTime()
	metrics.RunLastDuration.Set(report.Duration.Seconds())

	// The run context may already be cancelled; the summary is still recorded.
	finishCtx := context.WithoutCancel(ctx)
	if err := p.recorder.FinishRun(finishCtx, runID, journal.Summary{
		Status:   status,
		Images:   report.Images,
		Videos:   report.Videos,
		Failures: report.Failures(),
	}); err != nil {
		logging.Warn("Failed to record run finish: %v", err)
	}

	if runErr != nil {
		logging.Error("Run %s aborted after %v: %v", runID, report.Duration.Round(time.Millisecond), runErr)
		return report, runErr
	}

	logging.Info("Processed %d images and %d videos", report.Images, report.Videos)
	logging.Info("Generated %d thumbnails", report.ThumbnailsGenerated)
	logging.Info("Run %s finished in %v (%s, %d failures)",
		runID, report.Duration.Round(time.Millisecond), status, report.Failures())
	return report, nil
}

type stageFunc func(ctx context.Context, sr *StageReport, report *Report) error

// runStages executes the stages in order. Stages marked abort end the run when
// they fail; the rest only record their error.
func (p *Pipeline) runStages(ctx context.Context, report *Report) error {
	stages := []struct {
		name  string
		fn    stageFunc
		abort bool
	}{
		{StageEnsureOutputDir, p.ensureOutputDir, true},
		{StageConvertHEIC, p.convertHEIC, false},
		{StageTranscodeMOV, p.transcodeMOV, false},
		{StageMP4Passthrough, p.mp4Passthrough, false},
		{StageCompressImages, p.compressImages, false},
		{StagePurgeAAE, p.purgeAAE, false},
		{StageRescan, p.rescan, false},
		{StageThumbnails, p.thumbnails, false},
		{StageWriteManifest, p.writeManifest, true},
	}

	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		sr := &StageReport{Name: stage.name}
		report.Stages = append(report.Stages, sr)

		start := time.Now()
		err := stage.fn(ctx, sr, report)
		sr.Duration = time.Since(start)
		metrics.StageDuration.WithLabelValues(stage.name).Observe(sr.Duration.Seconds())

		logging.Debug("Stage %s: %d processed, %d skipped, %d failed in %v",
			stage.name, sr.Processed, sr.Skipped, sr.Failed, sr.Duration)

		if err == nil {
			continue
		}
		sr.Err = err
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if stage.abort {
			return fmt.Errorf("%s: %w", stage.name, err)
		}
		logging.Error("Stage %s failed, continuing: %v", stage.name, err)
	}
	return nil
}

type nopRecorder struct{}

func (nopRecorder) StartRun(context.Context, string) (string, error) {
	return uuid.NewString(), nil
}

func (nopRecorder) RecordEvent(context.Context, journal.Event) error {
	return nil
}

func (nopRecorder) FinishRun(context.Context, string, journal.Summary) error {
	return nil
}

package transcoder

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/metrics"
)

// Strategy selects the FFmpeg argument set.
type Strategy string

const (
	// StrategyReencode re-encodes video to H.264 and audio to AAC.
	StrategyReencode Strategy = "reencode"
	// StrategyStreamCopy keeps the video stream and re-encodes audio only.
	StrategyStreamCopy Strategy = "stream_copy"
)

// Args returns the FFmpeg arguments for strategy. -y is always passed so an
// earlier partial output never blocks the run.
func Args(strategy Strategy, src, dst string) []string {
	args := []string{"-i", src}
	switch strategy {
	case StrategyStreamCopy:
		args = append(args, "-c:v", "copy")
	default:
		args = append(args, "-c:v", "libopenh264", "-crf", "23")
	}
	return append(args,
		"-c:a", "aac",
		"-b:a", "96k",
		"-movflags", "+faststart",
		"-y", dst,
	)
}

// Transcoder manages MOV to MP4 conversion with a stream-copy fallback.
type Transcoder struct {
	runner     Runner
	onProgress ProgressFunc
}

// TranscodeResult reports which strategy produced the output.
type TranscodeResult struct {
	Strategy Strategy
	Duration time.Duration
}

// New creates a new Transcoder instance.
func New(runner Runner) *Transcoder {
	return &Transcoder{runner: runner}
}

// SetProgressFunc installs a progress callback. Pass nil to disable.
func (t *Transcoder) SetProgressFunc(fn ProgressFunc) {
	t.onProgress = fn
}

// Transcode writes dst from src. The source is never touched; the caller
// removes it after a nil return. On failure no file is left at dst.
func (t *Transcoder) Transcode(ctx context.Context, src, dst string) (*TranscodeResult, error) {
	start := time.Now()
	defer func() {
		metrics.TranscodeDuration.Observe(time.Since(start).Seconds())
	}()

	var lastErr error
	for _, strategy := range []Strategy{StrategyReencode, StrategyStreamCopy} {
		res := t.attempt(ctx, strategy, src, dst)
		metrics.TranscodeAttemptsTotal.WithLabelValues(string(strategy), res.Outcome.String()).Inc()

		if res.Outcome == OutcomeSuccess {
			if !filesystem.Exists(dst) {
				lastErr = fmt.Errorf("%s produced no output", strategy)
				logging.Warn("ffmpeg %s of %s exited cleanly without output", strategy, filepath.Base(src))
				continue
			}
			logging.Debug("transcoded %s -> %s (%s) in %v",
				filepath.Base(src), filepath.Base(dst), strategy, time.Since(start))
			return &TranscodeResult{Strategy: strategy, Duration: time.Since(start)}, nil
		}

		t.removePartial(dst)
		lastErr = res.Err
		if res.StderrTail != "" {
			logging.Debug("ffmpeg stderr for %s:\n%s", filepath.Base(src), res.StderrTail)
		}

		if res.Outcome == OutcomeFatal {
			break
		}
		logging.Warn("ffmpeg %s failed for %s (exit %d), trying next strategy",
			strategy, filepath.Base(src), res.ExitCode)
	}

	return nil, mediaerr.Encode("transcode", src, lastErr)
}

func (t *Transcoder) attempt(ctx context.Context, strategy Strategy, src, dst string) Result {
	file := filepath.Base(src)
	onLine := func(line string) {
		if t.onProgress == nil {
			return
		}
		if pos, ok := ParseProgress(line); ok {
			t.onProgress(Progress{File: file, Strategy: strategy, Position: pos})
		}
	}
	return t.runner.Run(ctx, Args(strategy, src, dst), onLine)
}

func (t *Transcoder) removePartial(dst string) {
	if err := filesystem.RemoveWithRetry(dst, filesystem.DefaultRetryConfig()); err != nil {
		logging.Warn("failed to remove partial output %s: %v", dst, err)
	}
}

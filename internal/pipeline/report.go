package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"media-pipeline/internal/journal"
	"media-pipeline/internal/manifest"
)

// Stage names, in execution order.
const (
	StageEnsureOutputDir = "ensure-output-dir"
	StageConvertHEIC     = "convert-heic"
	StageTranscodeMOV    = "transcode-mov"
	StageMP4Passthrough  = "mp4-passthrough"
	StageCompressImages  = "compress-images"
	StagePurgeAAE        = "purge-aae"
	StageRescan          = "rescan"
	StageThumbnails      = "thumbnails"
	StageWriteManifest   = "write-manifest"
)

// StageReport counts what one stage did.
type StageReport struct {
	Name      string
	Processed int
	Skipped   int
	Failed    int
	Duration  time.Duration

	// Errors holds per-file failures.
	Errors []error
	// Warnings holds recovered problems such as probe fallbacks.
	Warnings []error
	// Err is set when the stage itself could not run (listing failure).
	Err error

	mu sync.Mutex
}

func (s *StageReport) processed() {
	s.mu.Lock()
	s.Processed++
	s.mu.Unlock()
}

func (s *StageReport) skipped() {
	s.mu.Lock()
	s.Skipped++
	s.mu.Unlock()
}

func (s *StageReport) fail(err error) {
	s.mu.Lock()
	s.Failed++
	s.Errors = append(s.Errors, err)
	s.mu.Unlock()
}

func (s *StageReport) warn(err error) {
	s.mu.Lock()
	s.Warnings = append(s.Warnings, err)
	s.mu.Unlock()
}

// err joins the stage error and every per-file error.
func (s *StageReport) err() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	errs := make([]error, 0, len(s.Errors)+1)
	if s.Err != nil {
		errs = append(errs, fmt.Errorf("stage %s: %w", s.Name, s.Err))
	}
	errs = append(errs, s.Errors...)
	return errors.Join(errs...)
}

// Report is the outcome of one run.
type Report struct {
	RunID    string
	MediaDir string
	Stages   []*StageReport
	Entries  []manifest.Entry

	Images              int
	Videos              int
	ThumbnailsGenerated int

	StartedAt time.Time
	Duration  time.Duration
}

// Stage returns the report for name, or nil if the stage did not run.
func (r *Report) Stage(name string) *StageReport {
	for _, s := range r.Stages {
		if s.Name == name {
			return s
		}
	}
	return nil
}

// Failures counts per-file failures and failed stages.
func (r *Report) Failures() int {
	n := 0
	for _, s := range r.Stages {
		n += s.Failed
		if s.Err != nil {
			n++
		}
	}
	return n
}

// Err joins every recorded failure. Nil means a clean run.
func (r *Report) Err() error {
	errs := make([]error, 0, len(r.Stages))
	for _, s := range r.Stages {
		if err := s.err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status classifies the run for the journal and metrics.
func (r *Report) Status(runErr error) string {
	switch {
	case runErr != nil:
		return journal.StatusFailed
	case r.Failures() > 0:
		return journal.StatusPartial
	default:
		return journal.StatusSuccess
	}
}

package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/journal"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/manifest"
	"media-pipeline/internal/media"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/mediatypes"
	"media-pipeline/internal/metrics"
)

// outcome is what a per-file step reports back to forEach.
type outcome struct {
	action  string
	detail  string
	skipped bool
}

type fileStep func(ctx context.Context, f mediatypes.MediaFile) (outcome, error)

// targetFunc names the file a step writes for name. Steps that write nothing
// pass nil.
type targetFunc func(name string) string

// forEach lists the directory, keeps files of kind and runs step on each.
// Files that share a target run one after another in listing order on the same
// worker, so the first claims the target and the rest see it on disk.
func (p *Pipeline) forEach(ctx context.Context, sr *StageReport, runID string, kind mediatypes.Kind, target targetFunc, step fileStep) error {
	files, err := media.Scan(p.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", p.dir, err)
	}
	groups := groupByTarget(media.Filter(files, kind), target)

	return p.pool.Each(ctx, len(groups), func(ctx context.Context, i int) {
		for _, f := range groups[i] {
			if ctx.Err() != nil {
				return
			}
			out, err := step(ctx, f)
			p.record(ctx, sr, runID, f.Name, out, err)
		}
	})
}

// groupByTarget splits files into groups sharing a target, keeping listing
// order both across and within groups.
func groupByTarget(files []mediatypes.MediaFile, target targetFunc) [][]mediatypes.MediaFile {
	groups := make([][]mediatypes.MediaFile, 0, len(files))
	index := make(map[string]int, len(files))
	for _, f := range files {
		if target == nil {
			groups = append(groups, []mediatypes.MediaFile{f})
			continue
		}
		key := target(f.Name)
		if i, ok := index[key]; ok {
			groups[i] = append(groups[i], f)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, []mediatypes.MediaFile{f})
	}
	return groups
}

func convertedName(ext string) targetFunc {
	return func(name string) string { return mediatypes.ReplaceExt(name, ext) }
}

func (p *Pipeline) record(ctx context.Context, sr *StageReport, runID, name string, out outcome, err error) {
	event := journal.Event{
		RunID:  runID,
		Stage:  sr.Name,
		File:   name,
		Action: out.action,
		Detail: out.detail,
	}

	switch {
	case err != nil:
		logging.Error("%s: %s: %v", sr.Name, filepath.Join(p.dir, name), err)
		sr.fail(err)
		event.Status = "failed"
		event.Detail = err.Error()
		metrics.StageFilesTotal.WithLabelValues(sr.Name, "failed").Inc()
	case out.skipped:
		sr.skipped()
		event.Status = "skipped"
		metrics.StageFilesTotal.WithLabelValues(sr.Name, "skipped").Inc()
	default:
		sr.processed()
		event.Status = "ok"
		metrics.StageFilesTotal.WithLabelValues(sr.Name, "processed").Inc()
	}

	if rerr := p.recorder.RecordEvent(context.WithoutCancel(ctx), event); rerr != nil {
		logging.Warn("Failed to journal %s %s: %v", sr.Name, name, rerr)
	}
}

// removeSource deletes src after its replacement has been written.
func removeSource(src string) error {
	if err := filesystem.RemoveWithRetry(src, filesystem.DefaultRetryConfig()); err != nil {
		return mediaerr.IO("remove source", src, err)
	}
	return nil
}

func (p *Pipeline) ensureOutputDir(_ context.Context, sr *StageReport, _ *Report) error {
	info, err := filesystem.StatWithRetry(p.dir, filesystem.DefaultRetryConfig())
	if err != nil {
		return fmt.Errorf("media directory unavailable: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("media directory %s is not a directory", p.dir)
	}

	thumbDir := p.thumbs.Dir()
	existed := filesystem.Exists(thumbDir)
	if err := filesystem.EnsureDir(thumbDir); err != nil {
		return mediaerr.IO("create thumbnail dir", thumbDir, err)
	}
	if existed {
		sr.skipped()
		return nil
	}
	logging.Info("Created thumbnail directory %s", thumbDir)
	sr.processed()
	return nil
}

func (p *Pipeline) convertHEIC(ctx context.Context, sr *StageReport, report *Report) error {
	return p.forEach(ctx, sr, report.RunID, mediatypes.KindHEIC, convertedName(".jpg"), func(_ context.Context, f mediatypes.MediaFile) (outcome, error) {
		src := filepath.Join(p.dir, f.Name)
		dstName := mediatypes.ReplaceExt(f.Name, ".jpg")
		out := outcome{action: "convert", detail: dstName}

		if err := p.heic.Convert(src, filepath.Join(p.dir, dstName)); err != nil {
			return out, err
		}
		logging.Info("Converted %s -> %s", f.Name, dstName)
		return out, removeSource(src)
	})
}

func (p *Pipeline) transcodeMOV(ctx context.Context, sr *StageReport, report *Report) error {
	return p.forEach(ctx, sr, report.RunID, mediatypes.KindMOV, convertedName(".mp4"), func(ctx context.Context, f mediatypes.MediaFile) (outcome, error) {
		src := filepath.Join(p.dir, f.Name)
		dstName := mediatypes.ReplaceExt(f.Name, ".mp4")
		out := outcome{action: "transcode"}

		res, err := p.video.Transcode(ctx, src, filepath.Join(p.dir, dstName))
		if err != nil {
			logging.Warn("Keeping original %s after failed transcode", f.Name)
			return out, err
		}
		out.detail = string(res.Strategy)
		logging.Info("Transcoded %s -> %s (%s)", f.Name, dstName, res.Strategy)

		// The MP4 is already in place; a leftover MOV is re-encoded next run
		if err := removeSource(src); err != nil {
			logging.Warn("Failed to remove %s after transcode: %v", f.Name, err)
			sr.warn(err)
		}
		return out, nil
	})
}

// mp4Passthrough touches nothing; MP4 files are already deliverable.
func (p *Pipeline) mp4Passthrough(ctx context.Context, sr *StageReport, report *Report) error {
	return p.forEach(ctx, sr, report.RunID, mediatypes.KindVideo, nil, func(context.Context, mediatypes.MediaFile) (outcome, error) {
		return outcome{action: "passthrough", skipped: true}, nil
	})
}

func (p *Pipeline) compressImages(ctx context.Context, sr *StageReport, report *Report) error {
	return p.forEach(ctx, sr, report.RunID, mediatypes.KindImage, mediatypes.CompressedName, func(_ context.Context, f mediatypes.MediaFile) (outcome, error) {
		src := filepath.Join(p.dir, f.Name)
		out := outcome{action: "compress"}

		res, err := p.compressor.Compress(src)
		if err != nil {
			return out, err
		}
		if res.Skipped {
			out.skipped = true
			return out, nil
		}
		out.detail = fmt.Sprintf("%s %dx%d via %s", filepath.Base(res.Output), res.Dimensions.Width, res.Dimensions.Height, res.Backend)
		logging.Info("Compressed %s -> %s (%dx%d)", f.Name, filepath.Base(res.Output), res.Dimensions.Width, res.Dimensions.Height)
		return out, removeSource(src)
	})
}

func (p *Pipeline) purgeAAE(ctx context.Context, sr *StageReport, report *Report) error {
	return p.forEach(ctx, sr, report.RunID, mediatypes.KindAAE, nil, func(_ context.Context, f mediatypes.MediaFile) (outcome, error) {
		if err := removeSource(filepath.Join(p.dir, f.Name)); err != nil {
			return outcome{action: "delete"}, err
		}
		logging.Debug("Deleted sidecar %s", f.Name)
		return outcome{action: "delete"}, nil
	})
}

// rescan logs what survived the mutating stages.
func (p *Pipeline) rescan(_ context.Context, sr *StageReport, _ *Report) error {
	files, err := media.Scan(p.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", p.dir, err)
	}
	for _, f := range files {
		if mediatypes.IsMedia(f.Kind) {
			sr.processed()
		} else {
			sr.skipped()
		}
	}
	logging.Debug("Rescan found %d media files", sr.Processed)
	return nil
}

// thumbnails ensures a thumbnail and probes dimensions for every image and
// video, building the manifest entries in listing order. A thumbnail failure
// is recorded but the entry is still emitted.
func (p *Pipeline) thumbnails(ctx context.Context, sr *StageReport, report *Report) error {
	files, err := media.Scan(p.dir)
	if err != nil {
		return fmt.Errorf("failed to list %s: %w", p.dir, err)
	}

	var servable []mediatypes.MediaFile
	for _, f := range files {
		if mediatypes.IsMedia(f.Kind) {
			servable = append(servable, f)
		}
	}

	entries := make([]manifest.Entry, len(servable))
	var generated int64

	err = p.pool.Each(ctx, len(servable), func(ctx context.Context, i int) {
		f := servable[i]
		src := filepath.Join(p.dir, f.Name)

		dims, perr := media.ProbeDimensions(src, f.Kind)
		if perr != nil {
			logging.Warn("Using default dimensions for %s: %v", f.Name, perr)
			sr.warn(perr)
		}
		entries[i] = manifest.NewEntry(f.Name, f.Kind, dims.Width, dims.Height)

		status, terr := p.thumbs.Ensure(src, f.Kind)
		out := outcome{action: "thumbnail", detail: string(status)}
		if status == media.ThumbnailExists {
			out.skipped = true
		}
		if status == media.ThumbnailGenerated {
			atomic.AddInt64(&generated, 1)
		}
		p.record(ctx, sr, report.RunID, f.Name, out, terr)
	})

	report.ThumbnailsGenerated = int(generated)
	if err != nil {
		return err
	}

	report.Entries = entries
	for _, e := range entries {
		if e.Type == string(mediatypes.KindImage) {
			report.Images++
		} else {
			report.Videos++
		}
	}
	return nil
}

func (p *Pipeline) writeManifest(_ context.Context, sr *StageReport, report *Report) error {
	// Without an inventory the previous manifest is left in place
	if ts := report.Stage(StageThumbnails); ts == nil || ts.Err != nil {
		return fmt.Errorf("no media inventory, keeping previous manifest")
	}
	if err := manifest.Write(p.dir, report.Entries); err != nil {
		return mediaerr.IO("write manifest", manifest.Path(p.dir), err)
	}
	logging.Info("Wrote %s with %d entries", manifest.FileName, len(report.Entries))
	sr.processed()
	return nil
}

package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"media-pipeline/internal/journal"
	"media-pipeline/internal/manifest"
	"media-pipeline/internal/media"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/transcoder"
)

// fakeHEICDecoder decodes any file to a 640x480 frame unless its content
// starts with "corrupt".
type fakeHEICDecoder struct{}

func (fakeHEICDecoder) Decode(r io.ReaderAt, size int64) (image.Image, []byte, error) {
	head := make([]byte, 7)
	n, _ := r.ReadAt(head, 0)
	if string(head[:n]) == "corrupt" {
		return nil, nil, errors.New("corrupt heic")
	}
	img := image.NewRGBA(image.Rect(0, 0, 640, 480))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	return img, nil, nil
}

// scriptedRunner plays back outcomes per source file, one per attempt. Files
// without a script succeed on the first attempt.
type scriptedRunner struct {
	mu       sync.Mutex
	plan     map[string][]transcoder.Outcome
	attempts map[string]int
	writing  map[string]bool
	overlap  bool
}

func newScriptedRunner(plan map[string][]transcoder.Outcome) *scriptedRunner {
	return &scriptedRunner{plan: plan, attempts: map[string]int{}, writing: map[string]bool{}}
}

func (r *scriptedRunner) Run(_ context.Context, args []string, _ func(string)) transcoder.Result {
	src := filepath.Base(args[1])
	dst := args[len(args)-1]

	r.mu.Lock()
	attempt := r.attempts[src]
	r.attempts[src]++
	outcomes := r.plan[src]
	if r.writing[dst] {
		r.overlap = true
	}
	r.writing[dst] = true
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.writing, dst)
		r.mu.Unlock()
	}()
	// Give a concurrent encode of the same output a chance to collide
	time.Sleep(5 * time.Millisecond)

	outcome := transcoder.OutcomeSuccess
	if attempt < len(outcomes) {
		outcome = outcomes[attempt]
	}
	if outcome == transcoder.OutcomeSuccess {
		_ = os.WriteFile(dst, []byte("mp4 from "+src), 0o644)
		return transcoder.Result{Outcome: outcome}
	}
	return transcoder.Result{Outcome: outcome, ExitCode: 1, Err: errors.New("encoder failed")}
}

func (r *scriptedRunner) attemptsFor(src string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.attempts[src]
}

type memoryRecorder struct {
	mu       sync.Mutex
	events   []journal.Event
	started  int
	finished []journal.Summary
}

func (m *memoryRecorder) StartRun(context.Context, string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started++
	return "run-1", nil
}

func (m *memoryRecorder) RecordEvent(_ context.Context, e journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memoryRecorder) FinishRun(_ context.Context, _ string, s journal.Summary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished = append(m.finished, s)
	return nil
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 90, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeJPEG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestPipeline(dir string, runner transcoder.Runner, workers int, rec Recorder) *Pipeline {
	return New(Config{
		MediaDir:   dir,
		Workers:    workers,
		HEIC:       media.NewHEICConverter(fakeHEICDecoder{}),
		Transcoder: transcoder.New(runner),
		Compressor: media.NewCompressor(false),
		Recorder:   rec,
	})
}

func assertExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); err != nil {
		t.Errorf("expected %s to exist: %v", filepath.Base(path), err)
	}
}

func assertMissing(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected %s to be absent", filepath.Base(path))
	}
}

// seedMixedDir builds the directory used by the end-to-end tests.
func seedMixedDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "IMG_01.HEIC"), "heic")
	writeFile(t, filepath.Join(dir, "IMG_01.AAE"), "<plist/>")
	writeFile(t, filepath.Join(dir, "clip.MOV"), "mov")
	writeFile(t, filepath.Join(dir, "movie.mp4"), "mp4")
	writePNG(t, filepath.Join(dir, "photo.png"), 2400, 1800)
	writeJPEG(t, filepath.Join(dir, "small.jpg"), 320, 200)
	writeFile(t, filepath.Join(dir, "notes.txt"), "keep")
	return dir
}

func TestRunEndToEnd(t *testing.T) {
	dir := seedMixedDir(t)
	runner := newScriptedRunner(map[string][]transcoder.Outcome{
		"clip.MOV": {transcoder.OutcomeRecoverable, transcoder.OutcomeSuccess},
	})
	rec := &memoryRecorder{}

	report, err := newTestPipeline(dir, runner, 1, rec).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rerr := report.Err(); rerr != nil {
		t.Fatalf("Report.Err() = %v", rerr)
	}

	// HEIC converted, then compressed
	assertMissing(t, filepath.Join(dir, "IMG_01.HEIC"))
	assertMissing(t, filepath.Join(dir, "IMG_01.jpg"))
	assertExists(t, filepath.Join(dir, "IMG_01.cps.jpg"))

	// MOV transcoded by the fallback
	assertMissing(t, filepath.Join(dir, "clip.MOV"))
	assertExists(t, filepath.Join(dir, "clip.mp4"))
	if n := runner.attemptsFor("clip.MOV"); n != 2 {
		t.Errorf("clip.MOV encoder attempts = %d, want 2", n)
	}

	// Images capped and renamed
	assertMissing(t, filepath.Join(dir, "photo.png"))
	dims, err := media.GetImageDimensions(filepath.Join(dir, "photo.cps.jpg"))
	if err != nil {
		t.Fatal(err)
	}
	if dims.Width != 2048 || dims.Height != 1536 {
		t.Errorf("photo.cps.jpg is %dx%d, want 2048x1536", dims.Width, dims.Height)
	}
	assertMissing(t, filepath.Join(dir, "small.jpg"))
	assertExists(t, filepath.Join(dir, "small.cps.jpg"))

	// Sidecars purged, unknown files untouched
	assertMissing(t, filepath.Join(dir, "IMG_01.AAE"))
	assertExists(t, filepath.Join(dir, "notes.txt"))

	entries, err := manifest.Read(dir)
	if err != nil {
		t.Fatalf("manifest.Read() error = %v", err)
	}
	wantOrder := []string{"IMG_01.cps.jpg", "clip.mp4", "movie.mp4", "photo.cps.jpg", "small.cps.jpg"}
	if len(entries) != len(wantOrder) {
		t.Fatalf("manifest has %d entries, want %d: %+v", len(entries), len(wantOrder), entries)
	}
	for i, e := range entries {
		if e.ID != wantOrder[i] {
			t.Errorf("entry %d = %s, want %s", i, e.ID, wantOrder[i])
		}
		if e.Width <= 0 || e.Height <= 0 {
			t.Errorf("entry %s has dimensions %dx%d", e.ID, e.Width, e.Height)
		}
		assertExists(t, filepath.Join(dir, filepath.FromSlash(e.Thumbnail)))
	}

	heic := entries[0]
	if heic.Type != "image" || heic.Width != 640 || heic.Height != 480 || heic.Original != "/IMG_01.cps.jpg" {
		t.Errorf("unexpected converted entry %+v", heic)
	}
	if entries[1].Type != "video" || entries[1].Width != media.DefaultWidth || entries[1].Height != media.DefaultHeight {
		t.Errorf("unexpected video entry %+v", entries[1])
	}

	if report.Images != 3 || report.Videos != 2 {
		t.Errorf("report counts images=%d videos=%d", report.Images, report.Videos)
	}
	if report.ThumbnailsGenerated != 5 {
		t.Errorf("ThumbnailsGenerated = %d, want 5", report.ThumbnailsGenerated)
	}
	if len(report.Stages) != 9 {
		t.Errorf("expected 9 stage reports, got %d", len(report.Stages))
	}

	if rec.started != 1 || len(rec.finished) != 1 || rec.finished[0].Status != journal.StatusSuccess {
		t.Errorf("recorder lifecycle: started=%d finished=%+v", rec.started, rec.finished)
	}
	var transcoded *journal.Event
	for i := range rec.events {
		if rec.events[i].Stage == StageTranscodeMOV {
			transcoded = &rec.events[i]
		}
	}
	if transcoded == nil || transcoded.Detail != string(transcoder.StrategyStreamCopy) || transcoded.Status != "ok" {
		t.Errorf("transcode event = %+v", transcoded)
	}
}

func TestRunIsIdempotent(t *testing.T) {
	dir := seedMixedDir(t)
	runner := newScriptedRunner(nil)

	if _, err := newTestPipeline(dir, runner, 1, nil).Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	first, err := os.ReadFile(manifest.Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	thumb := filepath.Join(dir, media.ThumbnailDir, "photo.cps_thumb.jpg")
	thumbBefore, _ := os.ReadFile(thumb)

	report, err := newTestPipeline(dir, runner, 1, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("second Run() error = %v", err)
	}
	second, err := os.ReadFile(manifest.Path(dir))
	if err != nil {
		t.Fatal(err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("manifest changed between runs:\n%s\n---\n%s", first, second)
	}

	compress := report.Stage(StageCompressImages)
	if compress.Processed != 0 || compress.Skipped != 3 {
		t.Errorf("second run compress stage: %d processed, %d skipped", compress.Processed, compress.Skipped)
	}
	thumbs := report.Stage(StageThumbnails)
	if thumbs.Processed != 0 || thumbs.Skipped != 5 {
		t.Errorf("second run thumbnail stage: %d processed, %d skipped", thumbs.Processed, thumbs.Skipped)
	}
	if report.ThumbnailsGenerated != 0 {
		t.Errorf("ThumbnailsGenerated = %d on second run", report.ThumbnailsGenerated)
	}

	thumbAfter, _ := os.ReadFile(thumb)
	if !bytes.Equal(thumbBefore, thumbAfter) {
		t.Error("existing thumbnail was rewritten")
	}

	// No double-marked files appear
	assertMissing(t, filepath.Join(dir, "photo.cps.cps.jpg"))
}

func TestRunKeepsMOVWhenBothStrategiesFail(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "broken.mov"), "mov")
	writeFile(t, filepath.Join(dir, "good.mov"), "mov")

	runner := newScriptedRunner(map[string][]transcoder.Outcome{
		"broken.mov": {transcoder.OutcomeRecoverable, transcoder.OutcomeRecoverable},
	})
	rec := &memoryRecorder{}

	report, err := newTestPipeline(dir, runner, 1, rec).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	assertExists(t, filepath.Join(dir, "broken.mov"))
	assertMissing(t, filepath.Join(dir, "broken.mp4"))
	assertMissing(t, filepath.Join(dir, "good.mov"))
	assertExists(t, filepath.Join(dir, "good.mp4"))

	stage := report.Stage(StageTranscodeMOV)
	if stage.Failed != 1 || stage.Processed != 1 {
		t.Errorf("transcode stage: %d processed, %d failed", stage.Processed, stage.Failed)
	}
	if !mediaerr.IsEncode(report.Err()) {
		t.Errorf("Report.Err() = %v, want encode error", report.Err())
	}

	entries, _ := manifest.Read(dir)
	if len(entries) != 1 || entries[0].ID != "good.mp4" {
		t.Errorf("un-transcoded mov must not be listed: %+v", entries)
	}
	if rec.finished[0].Status != journal.StatusPartial || rec.finished[0].Failures != 1 {
		t.Errorf("finish summary = %+v", rec.finished[0])
	}
}

func TestRunFatalEncoderSkipsFallback(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.mov"), "mov")
	runner := newScriptedRunner(map[string][]transcoder.Outcome{
		"clip.mov": {transcoder.OutcomeFatal},
	})

	report, err := newTestPipeline(dir, runner, 1, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if n := runner.attemptsFor("clip.mov"); n != 1 {
		t.Errorf("attempts = %d, want 1", n)
	}
	assertExists(t, filepath.Join(dir, "clip.mov"))
	if report.Stage(StageTranscodeMOV).Failed != 1 {
		t.Error("fatal encoder failure should be recorded")
	}
}

func TestRunHEICFailureKeepsSource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "bad.heic"), "corrupt data")

	report, err := newTestPipeline(dir, newScriptedRunner(nil), 1, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	assertExists(t, filepath.Join(dir, "bad.heic"))
	assertMissing(t, filepath.Join(dir, "bad.jpg"))
	if !mediaerr.IsDecode(report.Err()) {
		t.Errorf("Report.Err() = %v, want decode error", report.Err())
	}
}

func TestRunCorruptImageStillListed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "corrupt.jpg"), "not a jpeg")

	report, err := newTestPipeline(dir, newScriptedRunner(nil), 1, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	assertExists(t, filepath.Join(dir, "corrupt.jpg"))
	entries, err := manifest.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %+v", entries)
	}
	if entries[0].Width != media.DefaultWidth || entries[0].Height != media.DefaultHeight {
		t.Errorf("corrupt image should use fallback dimensions, got %dx%d", entries[0].Width, entries[0].Height)
	}

	thumbs := report.Stage(StageThumbnails)
	if thumbs.Failed != 1 || len(thumbs.Warnings) != 1 {
		t.Errorf("thumbnail stage: failed=%d warnings=%d", thumbs.Failed, len(thumbs.Warnings))
	}
	if report.Stage(StageCompressImages).Failed != 1 {
		t.Error("compression failure should be recorded")
	}
}

func TestRunEmptyDirectory(t *testing.T) {
	dir := t.TempDir()

	report, err := newTestPipeline(dir, newScriptedRunner(nil), 1, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	data, err := os.ReadFile(manifest.Path(dir))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[]" {
		t.Errorf("manifest = %q, want []", data)
	}
	assertExists(t, filepath.Join(dir, media.ThumbnailDir))
	if report.Stage(StageEnsureOutputDir).Processed != 1 {
		t.Error("thumbnail dir creation should count as processed")
	}
}

func TestRunMissingDirectoryAborts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nope")

	report, err := newTestPipeline(dir, newScriptedRunner(nil), 1, nil).Run(context.Background())
	if err == nil {
		t.Fatal("expected abort for missing media directory")
	}
	if len(report.Stages) != 1 {
		t.Errorf("no stage should run after an abort, got %d", len(report.Stages))
	}
	assertMissing(t, dir)
}

func TestRunThumbnailDirBlockedAborts(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, media.ThumbnailDir), "a file where the dir should be")

	report, err := newTestPipeline(dir, newScriptedRunner(nil), 1, nil).Run(context.Background())
	if !mediaerr.IsIO(err) {
		t.Fatalf("Run() error = %v, want io error", err)
	}
	if report.Status(err) != journal.StatusFailed {
		t.Errorf("Status = %s", report.Status(err))
	}
	assertMissing(t, manifest.Path(dir))
}

func TestRunCancelled(t *testing.T) {
	dir := seedMixedDir(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(dir, newScriptedRunner(nil), 1, nil).Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
	assertMissing(t, manifest.Path(dir))
}

func TestRunParallelMatchesSequential(t *testing.T) {
	seqDir := seedMixedDir(t)
	parDir := seedMixedDir(t)

	if _, err := newTestPipeline(seqDir, newScriptedRunner(nil), 1, nil).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, err := newTestPipeline(parDir, newScriptedRunner(nil), 4, nil).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	seq, _ := os.ReadFile(manifest.Path(seqDir))
	par, _ := os.ReadFile(manifest.Path(parDir))
	if !bytes.Equal(seq, par) {
		t.Errorf("parallel manifest differs:\n%s\n---\n%s", seq, par)
	}
}

func TestRunRecordsToJournal(t *testing.T) {
	dir := t.TempDir()
	writeJPEG(t, filepath.Join(dir, "a.jpg"), 64, 48)
	writeFile(t, filepath.Join(dir, "a.aae"), "<plist/>")

	ctx := context.Background()
	j, err := journal.Open(ctx, filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	defer func() { _ = j.Close() }()

	report, err := newTestPipeline(dir, newScriptedRunner(nil), 1, j).Run(ctx)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	runs, err := j.RecentRuns(ctx, 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].ID != report.RunID {
		t.Fatalf("RecentRuns() = %+v", runs)
	}
	if runs[0].Status != journal.StatusSuccess || runs[0].Images != 1 || runs[0].Videos != 0 {
		t.Errorf("unexpected run summary %+v", runs[0])
	}

	events, err := j.Events(ctx, report.RunID)
	if err != nil {
		t.Fatal(err)
	}
	stages := map[string]string{}
	for _, e := range events {
		stages[e.Stage] = e.File
	}
	if stages[StageCompressImages] != "a.jpg" {
		t.Errorf("missing compress event, got %+v", events)
	}
	if stages[StagePurgeAAE] != "a.aae" {
		t.Errorf("missing purge event, got %+v", events)
	}
	if stages[StageThumbnails] != "a.cps.jpg" {
		t.Errorf("missing thumbnail event, got %+v", events)
	}
}

func TestRunParallelSharedCompressedName(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			dir := t.TempDir()
			writeJPEG(t, filepath.Join(dir, "photo.jpg"), 200, 100)
			writePNG(t, filepath.Join(dir, "photo.png"), 100, 200)
			for i := 0; i < 6; i++ {
				writeJPEG(t, filepath.Join(dir, fmt.Sprintf("other%d.jpg", i)), 40, 30)
			}

			report, err := newTestPipeline(dir, newScriptedRunner(nil), workers, nil).Run(context.Background())
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			// Listing order decides: photo.jpg claims photo.cps.jpg, photo.png is kept
			assertMissing(t, filepath.Join(dir, "photo.jpg"))
			assertExists(t, filepath.Join(dir, "photo.png"))
			dims, err := media.GetImageDimensions(filepath.Join(dir, "photo.cps.jpg"))
			if err != nil {
				t.Fatal(err)
			}
			if dims.Width != 200 || dims.Height != 100 {
				t.Errorf("photo.cps.jpg is %dx%d, want the 200x100 jpg", dims.Width, dims.Height)
			}

			stage := report.Stage(StageCompressImages)
			if stage.Processed != 7 || stage.Failed != 1 {
				t.Errorf("compress stage: %d processed, %d failed", stage.Processed, stage.Failed)
			}
			if !mediaerr.IsIO(report.Err()) {
				t.Errorf("Report.Err() = %v, want io error", report.Err())
			}
		})
	}
}

func TestRunParallelSharedMP4Name(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "clip.MOV"), "mov upper")
	writeFile(t, filepath.Join(dir, "clip.mov"), "mov lower")
	if entries, _ := os.ReadDir(dir); len(entries) != 2 {
		t.Skip("filesystem is case-insensitive")
	}

	runner := newScriptedRunner(map[string][]transcoder.Outcome{
		"clip.MOV": {transcoder.OutcomeRecoverable, transcoder.OutcomeRecoverable},
	})
	report, err := newTestPipeline(dir, runner, 2, nil).Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if runner.overlap {
		t.Error("two encodes wrote clip.mp4 at the same time")
	}
	assertExists(t, filepath.Join(dir, "clip.MOV"))
	assertMissing(t, filepath.Join(dir, "clip.mov"))
	data, err := os.ReadFile(filepath.Join(dir, "clip.mp4"))
	if err != nil {
		t.Fatalf("clip.mp4 missing: %v", err)
	}
	if string(data) != "mp4 from clip.mov" {
		t.Errorf("clip.mp4 = %q", data)
	}

	stage := report.Stage(StageTranscodeMOV)
	if stage.Processed != 1 || stage.Failed != 1 {
		t.Errorf("transcode stage: %d processed, %d failed", stage.Processed, stage.Failed)
	}
}

package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"media-pipeline/internal/journal"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/manifest"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/pipeline"
	"media-pipeline/internal/startup"
)

func executeRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	level := logging.GetLevel()
	t.Cleanup(func() { logging.SetLevel(level) })

	var out bytes.Buffer
	root := newRootCmd(startup.NewViper())
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeTestPNG(t *testing.T, path string) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 80))
	for i := 0; i < 120; i++ {
		img.Set(i, i%80, color.RGBA{R: 200, A: 255})
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyCommand(t *testing.T) {
	out, err := executeRoot(t, "classify", "a.HEIC", "b.mov", "c.cps.jpg", "d.txt")
	if err != nil {
		t.Fatalf("classify error = %v", err)
	}

	for _, want := range []string{"a.HEIC", "heic", "b.mov", "mov", "compressed", "d.txt", "none"} {
		if !strings.Contains(out, want) {
			t.Errorf("classify output missing %q:\n%s", want, out)
		}
	}
}

func TestClassifyRequiresArgs(t *testing.T) {
	if _, err := executeRoot(t, "classify"); err == nil {
		t.Error("expected error without filenames")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := executeRoot(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out, "media-pipeline "+startup.Version) {
		t.Errorf("unexpected version output:\n%s", out)
	}
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	writeTestPNG(t, filepath.Join(dir, "photo.png"))
	if err := os.WriteFile(filepath.Join(dir, "photo.AAE"), []byte("<plist/>"), 0o644); err != nil {
		t.Fatal(err)
	}
	journalPath := filepath.Join(t.TempDir(), "journal.db")
	textfile := filepath.Join(t.TempDir(), "pipeline.prom")

	_, err := executeRoot(t, "run", dir,
		"--vips=false",
		"--ffmpeg", filepath.Join(t.TempDir(), "missing-ffmpeg"),
		"--journal", journalPath,
		"--metrics-textfile", textfile,
	)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	entries, err := manifest.Read(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].ID != "photo.cps.jpg" {
		t.Errorf("manifest entries = %+v", entries)
	}
	if _, err := os.Stat(filepath.Join(dir, "photo.AAE")); !os.IsNotExist(err) {
		t.Error("sidecar should be deleted")
	}

	data, err := os.ReadFile(textfile)
	if err != nil {
		t.Fatalf("metrics textfile not written: %v", err)
	}
	if !strings.Contains(string(data), "media_pipeline_runs_total") {
		t.Error("textfile is missing run metrics")
	}

	out, err := executeRoot(t, "history", "--journal", journalPath)
	if err != nil {
		t.Fatalf("history error = %v", err)
	}
	if !strings.Contains(out, journal.StatusSuccess) || !strings.Contains(out, dir) {
		t.Errorf("history output:\n%s", out)
	}
}

func TestRunCommandMissingDir(t *testing.T) {
	_, err := executeRoot(t, filepath.Join(t.TempDir(), "absent"), "--vips=false")
	if err == nil {
		t.Error("expected error for missing media directory")
	}
}

func TestRunCommandStrict(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "broken.jpg"), []byte("not an image"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := executeRoot(t, "run", dir, "--vips=false"); err != nil {
		t.Errorf("non-strict run should succeed, got %v", err)
	}
	if _, err := executeRoot(t, "run", dir, "--vips=false", "--strict"); err == nil {
		t.Error("strict run should fail when a file fails")
	}
}

func TestHistoryRequiresJournal(t *testing.T) {
	t.Setenv("JOURNAL_PATH", "")
	if _, err := executeRoot(t, "history"); err == nil {
		t.Error("expected error without a journal path")
	}
}

func TestExitError(t *testing.T) {
	clean := &pipeline.Report{Stages: []*pipeline.StageReport{{Name: pipeline.StageRescan}}}
	if err := exitError(clean, true); err != nil {
		t.Errorf("clean report: %v", err)
	}

	failed := &pipeline.Report{Stages: []*pipeline.StageReport{{Name: pipeline.StageThumbnails, Failed: 2}}}
	if err := exitError(failed, false); err != nil {
		t.Errorf("non-strict failures should not error: %v", err)
	}
	if err := exitError(failed, true); err == nil {
		t.Error("strict failures should error")
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{mediaerr.Decode("decode", "a.heic", errors.New("bad")), "decode"},
		{fmt.Errorf("wrapped: %w", mediaerr.IO("remove", "a.jpg", errors.New("busy"))), "io"},
		{errors.New("plain"), "other"},
	}
	for _, tt := range tests {
		if got := failureKind(tt.err); got != tt.want {
			t.Errorf("failureKind(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}

func TestPrintRunsEmpty(t *testing.T) {
	var buf bytes.Buffer
	printRuns(&buf, nil)
	printEvents(&buf, nil)
	if !strings.Contains(buf.String(), "no runs recorded") || !strings.Contains(buf.String(), "no events recorded") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

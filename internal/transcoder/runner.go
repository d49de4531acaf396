package transcoder

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"

	"media-pipeline/internal/logging"
)

// Outcome classifies one encoder invocation.
type Outcome int

const (
	// OutcomeSuccess means the encoder exited zero.
	OutcomeSuccess Outcome = iota
	// OutcomeRecoverable means the encoder ran and exited non-zero; another
	// strategy may still succeed.
	OutcomeRecoverable
	// OutcomeFatal means the encoder could not be started or was cancelled.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuccess:
		return "success"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is what a Runner reports back.
type Result struct {
	Outcome  Outcome
	ExitCode int
	// StderrTail holds the last lines FFmpeg wrote, for error reports.
	StderrTail string
	Err        error
}

// Runner executes one encoder invocation. onLine receives every stderr line,
// split on both \r and \n since FFmpeg redraws its status line in place.
type Runner interface {
	Run(ctx context.Context, args []string, onLine func(string)) Result
}

const stderrTailLines = 20

// FFmpegRunner runs the ffmpeg binary.
type FFmpegRunner struct {
	path string

	processes map[*exec.Cmd]struct{}
	processMu sync.Mutex
}

// NewFFmpegRunner returns a runner for the binary at path ("ffmpeg" resolves
// through PATH).
func NewFFmpegRunner(path string) *FFmpegRunner {
	if path == "" {
		path = "ffmpeg"
	}
	return &FFmpegRunner{
		path:      path,
		processes: make(map[*exec.Cmd]struct{}),
	}
}

// Path returns the configured binary.
func (r *FFmpegRunner) Path() string {
	return r.path
}

func (r *FFmpegRunner) Run(ctx context.Context, args []string, onLine func(string)) Result {
	cmd := exec.CommandContext(ctx, r.path, args...)

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{Outcome: OutcomeFatal, ExitCode: -1, Err: fmt.Errorf("failed to create stderr pipe: %w", err)}
	}

	if err := cmd.Start(); err != nil {
		return Result{Outcome: OutcomeFatal, ExitCode: -1, Err: fmt.Errorf("failed to start ffmpeg: %w", err)}
	}

	r.processMu.Lock()
	r.processes[cmd] = struct{}{}
	r.processMu.Unlock()
	defer func() {
		r.processMu.Lock()
		delete(r.processes, cmd)
		r.processMu.Unlock()
	}()

	tail := readStderr(stderr, onLine)
	waitErr := cmd.Wait()

	res := Result{StderrTail: tail, ExitCode: cmd.ProcessState.ExitCode()}
	switch {
	case waitErr == nil:
		res.Outcome = OutcomeSuccess
	case ctx.Err() != nil:
		res.Outcome = OutcomeFatal
		res.Err = ctx.Err()
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Outcome = OutcomeRecoverable
		} else {
			res.Outcome = OutcomeFatal
		}
		res.Err = fmt.Errorf("ffmpeg exited with code %d: %w", res.ExitCode, waitErr)
	}
	return res
}

// Cleanup stops all active encoder processes.
func (r *FFmpegRunner) Cleanup() {
	r.processMu.Lock()
	defer r.processMu.Unlock()

	for cmd := range r.processes {
		if cmd.Process != nil {
			logging.Info("Killing ffmpeg process %d", cmd.Process.Pid)
			if err := cmd.Process.Kill(); err != nil {
				logging.Warn("failed to kill ffmpeg process %d: %v", cmd.Process.Pid, err)
			}
		}
	}
}

// readStderr feeds every line to onLine and returns the last few joined.
// It always drains r so the child never blocks on a full pipe.
func readStderr(r io.Reader, onLine func(string)) string {
	tail := make([]string, 0, stderrTailLines)
	scanner := bufio.NewScanner(r)
	scanner.Split(scanLinesOrCR)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if onLine != nil {
			onLine(line)
		}
		if len(tail) == stderrTailLines {
			tail = append(tail[:0], tail[1:]...)
		}
		tail = append(tail, line)
	}
	if err := scanner.Err(); err != nil {
		logging.Debug("stopped reading ffmpeg stderr: %v", err)
		_, _ = io.Copy(io.Discard, r)
	}
	return strings.Join(tail, "\n")
}

func scanLinesOrCR(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Version runs "<path> -version" and returns the first output line.
func Version(ctx context.Context, path string) (string, error) {
	out, err := exec.CommandContext(ctx, path, "-version").Output()
	if err != nil {
		return "", fmt.Errorf("%s -version: %w", path, err)
	}
	line, _, _ := strings.Cut(string(out), "\n")
	return strings.TrimSpace(line), nil
}

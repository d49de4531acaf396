package transcoder

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var progressPattern = regexp.MustCompile(`time=(\d+):(\d+):(\d+\.\d+)`)

// Progress is one position report for the file being encoded.
type Progress struct {
	File     string
	Strategy Strategy
	Position time.Duration
}

// ProgressFunc receives progress reports. It is called from the goroutine
// running the encoder.
type ProgressFunc func(Progress)

// ParseProgress extracts the encoded position from an FFmpeg status line.
func ParseProgress(line string) (time.Duration, bool) {
	m := progressPattern.FindStringSubmatch(line)
	if m == nil {
		return 0, false
	}

	hours, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	minutes, err := strconv.Atoi(m[2])
	if err != nil {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(m[3], 64)
	if err != nil {
		return 0, false
	}

	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds*float64(time.Second)), true
}

// FormatPosition renders d as HH:MM:SS.ss like FFmpeg does.
func FormatPosition(d time.Duration) string {
	h := int(d / time.Hour)
	d -= time.Duration(h) * time.Hour
	m := int(d / time.Minute)
	d -= time.Duration(m) * time.Minute
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, d.Seconds())
}

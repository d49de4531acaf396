package manifest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"path/filepath"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/mediatypes"
	"media-pipeline/internal/metrics"
)

// FileName is the manifest filename at the media directory root.
const FileName = "media-manifest.json"

// Entry describes one servable media file. Paths are URL paths relative to the
// media directory root.
type Entry struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Type      string `json:"type"`
	Thumbnail string `json:"thumbnail"`
	Original  string `json:"original"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

// NewEntry builds the entry for name. kind must be image or video.
func NewEntry(name string, kind mediatypes.Kind, width, height int) Entry {
	return Entry{
		ID:        name,
		Filename:  name,
		Type:      string(kind),
		Thumbnail: "/thumbnails/" + mediatypes.ThumbnailName(name),
		Original:  "/" + name,
		Width:     width,
		Height:    height,
	}
}

// Marshal renders entries as a two-space indented JSON array. A nil slice
// renders as []. HTML characters are written as is, but encoding/json always
// escapes U+2028 and U+2029 as \u2028 and \u2029, so names containing them
// differ from a JSON.stringify rendering in bytes while decoding the same.
func Marshal(entries []Entry) ([]byte, error) {
	if entries == nil {
		entries = []Entry{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return nil, fmt.Errorf("failed to encode manifest: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Path returns the manifest path inside dir.
func Path(dir string) string {
	return filepath.Join(dir, FileName)
}

// Write replaces the manifest in dir with entries in one atomic rename.
func Write(dir string, entries []Entry) error {
	data, err := Marshal(entries)
	if err != nil {
		return err
	}
	if err := filesystem.WriteFileAtomic(Path(dir), data, 0o644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	counts := map[string]int{string(mediatypes.KindImage): 0, string(mediatypes.KindVideo): 0}
	for _, e := range entries {
		counts[e.Type]++
	}
	for typ, n := range counts {
		metrics.ManifestEntries.WithLabelValues(typ).Set(float64(n))
	}
	return nil
}

// Read loads the manifest from dir.
func Read(dir string) ([]Entry, error) {
	data, err := filesystem.ReadFileWithRetry(Path(dir), filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return entries, nil
}

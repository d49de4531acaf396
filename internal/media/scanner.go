package media

import (
	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/mediatypes"
)

// Scan lists the regular entries of dir in listing order and classifies each
// one. Subdirectories (thumbnails/ included) are skipped; there is no recursion.
func Scan(dir string) ([]mediatypes.MediaFile, error) {
	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, err
	}

	files := make([]mediatypes.MediaFile, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		files = append(files, mediatypes.MediaFile{
			Name: entry.Name(),
			Kind: mediatypes.Classify(entry.Name()),
		})
	}
	return files, nil
}

// Filter returns the files of the given kind, preserving order.
func Filter(files []mediatypes.MediaFile, kind mediatypes.Kind) []mediatypes.MediaFile {
	var out []mediatypes.MediaFile
	for _, f := range files {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

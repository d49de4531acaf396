package media

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"path/filepath"
	"sync"
	"time"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/mediatypes"
	"media-pipeline/internal/metrics"

	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
)

const (
	// ThumbnailSize is the edge of the square thumbnail.
	ThumbnailSize = 300
	// ThumbnailQuality is the JPEG quality of thumbnails.
	ThumbnailQuality = 80
	// ThumbnailDir is the directory name, relative to the media directory.
	ThumbnailDir = "thumbnails"
)

// PlaceholderColor fills video placeholders. No frame is ever extracted.
var PlaceholderColor = color.RGBA{R: 60, G: 60, B: 60, A: 255}

// ThumbnailStatus is the outcome of Ensure.
type ThumbnailStatus string

const (
	ThumbnailGenerated ThumbnailStatus = "generated"
	ThumbnailExists    ThumbnailStatus = "exists"
)

type ThumbnailGenerator struct {
	dir string

	placeholderOnce sync.Once
	placeholder     []byte
	placeholderErr  error
}

func NewThumbnailGenerator(dir string) *ThumbnailGenerator {
	logging.Debug("ThumbnailGenerator: output dir: %s", dir)
	return &ThumbnailGenerator{dir: dir}
}

// Dir returns the thumbnail directory.
func (t *ThumbnailGenerator) Dir() string {
	return t.dir
}

// PathFor returns where the thumbnail for the media file name is written.
func (t *ThumbnailGenerator) PathFor(name string) string {
	return filepath.Join(t.dir, mediatypes.ThumbnailName(name))
}

// Ensure writes the thumbnail for src unless one already exists. Existing
// thumbnails are never regenerated, even when stale.
func (t *ThumbnailGenerator) Ensure(src string, kind mediatypes.Kind) (ThumbnailStatus, error) {
	thumbPath := t.PathFor(filepath.Base(src))
	if filesystem.Exists(thumbPath) {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), string(ThumbnailExists)).Inc()
		return ThumbnailExists, nil
	}

	start := time.Now()
	data, err := t.render(src, kind)
	if err == nil {
		if werr := filesystem.WriteFileAtomic(thumbPath, data, 0o644); werr != nil {
			err = mediaerr.IO("write thumbnail", thumbPath, werr)
		}
	}
	if err != nil {
		metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), "failed").Inc()
		return "", err
	}

	metrics.ThumbnailGenerationDuration.WithLabelValues(string(kind)).Observe(time.Since(start).Seconds())
	metrics.ThumbnailGenerationsTotal.WithLabelValues(string(kind), string(ThumbnailGenerated)).Inc()
	logging.Debug("Thumbnail generated: %s", thumbPath)
	return ThumbnailGenerated, nil
}

func (t *ThumbnailGenerator) render(src string, kind mediatypes.Kind) ([]byte, error) {
	switch kind {
	case mediatypes.KindImage:
		return t.imageThumbnail(src)
	case mediatypes.KindVideo:
		return t.videoPlaceholder()
	default:
		return nil, mediaerr.Decode("thumbnail", src, fmt.Errorf("unsupported kind: %s", kind))
	}
}

// imageThumbnail cover-fits the image into a square, cropping the overflow
// around the center. EXIF orientation is applied first.
func (t *ThumbnailGenerator) imageThumbnail(src string) ([]byte, error) {
	img, err := imaging.Open(src, imaging.AutoOrientation(true))
	if err != nil {
		return nil, mediaerr.Decode("thumbnail", src, err)
	}

	thumb := imaging.Fill(img, ThumbnailSize, ThumbnailSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, mediaerr.Encode("thumbnail", src, err)
	}
	return buf.Bytes(), nil
}

// videoPlaceholder returns the encoded solid gray square shared by every video.
func (t *ThumbnailGenerator) videoPlaceholder() ([]byte, error) {
	t.placeholderOnce.Do(func() {
		t.placeholder, t.placeholderErr = renderPlaceholder(ThumbnailSize, PlaceholderColor)
	})
	return t.placeholder, t.placeholderErr
}

func renderPlaceholder(size int, c color.Color) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: ThumbnailQuality}); err != nil {
		return nil, mediaerr.Encode("placeholder", "", err)
	}
	return buf.Bytes(), nil
}

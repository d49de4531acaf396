package media

import (
	"fmt"
	"image"
	"os"

	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/mediatypes"
	"media-pipeline/internal/metrics"

	// Image format decoders
	_ "image/jpeg"
	_ "image/png"
)

const (
	// DefaultWidth and DefaultHeight are reported for videos and for images
	// whose header cannot be read, so the gallery can always lay out a tile.
	DefaultWidth  = 1200
	DefaultHeight = 800
)

// ImageDimensions holds image width and height
type ImageDimensions struct {
	Width  int
	Height int
}

// DefaultDimensions returns the fallback dimension pair.
func DefaultDimensions() ImageDimensions {
	return ImageDimensions{Width: DefaultWidth, Height: DefaultHeight}
}

// GetImageDimensions returns image dimensions without fully decoding the image
func GetImageDimensions(path string) (*ImageDimensions, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := file.Close(); err != nil {
			logging.Warn("failed to close image file %s: %v", path, err)
		}
	}()

	config, _, err := image.DecodeConfig(file)
	if err != nil {
		return nil, err
	}
	if config.Width <= 0 || config.Height <= 0 {
		return nil, fmt.Errorf("invalid dimensions %dx%d", config.Width, config.Height)
	}

	return &ImageDimensions{
		Width:  config.Width,
		Height: config.Height,
	}, nil
}

// ProbeDimensions resolves the manifest dimensions of a media file. Videos get
// the defaults since no frame is decoded. For images a failed header read
// returns the defaults together with a probe error, which callers log and
// otherwise ignore.
func ProbeDimensions(path string, kind mediatypes.Kind) (ImageDimensions, error) {
	if kind != mediatypes.KindImage {
		return DefaultDimensions(), nil
	}

	dims, err := GetImageDimensions(path)
	if err != nil {
		metrics.ProbeFallbacksTotal.Inc()
		return DefaultDimensions(), mediaerr.Probe("probe", path, err)
	}
	return *dims, nil
}

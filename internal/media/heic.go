package media

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os"
	"path/filepath"
	"time"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaerr"

	"github.com/adrium/goheif"
)

// HEICQuality is the JPEG quality used for converted HEIC stills.
const HEICQuality = 95

// HEICDecoder decodes an HEIC container into pixels plus its raw EXIF block.
// A nil EXIF block with a nil error means the container had none.
type HEICDecoder interface {
	Decode(r io.ReaderAt, size int64) (image.Image, []byte, error)
}

type goheifDecoder struct{}

func (goheifDecoder) Decode(r io.ReaderAt, size int64) (img image.Image, exifData []byte, err error) {
	// libde265 bindings can panic on truncated input
	defer func() {
		if rec := recover(); rec != nil {
			img, exifData = nil, nil
			err = fmt.Errorf("heic decoder panic: %v", rec)
		}
	}()

	exifData, err = goheif.ExtractExif(io.NewSectionReader(r, 0, size))
	if err != nil {
		logging.Debug("no EXIF in HEIC container: %v", err)
		exifData = nil
	}

	img, err = goheif.Decode(io.NewSectionReader(r, 0, size))
	if err != nil {
		return nil, nil, err
	}
	return img, exifData, nil
}

// HEICConverter re-encodes HEIC stills as JPEG.
type HEICConverter struct {
	decoder HEICDecoder
	quality int
}

// NewHEICConverter returns a converter using decoder, or the goheif decoder
// when decoder is nil.
func NewHEICConverter(decoder HEICDecoder) *HEICConverter {
	if decoder == nil {
		decoder = goheifDecoder{}
	}
	return &HEICConverter{decoder: decoder, quality: HEICQuality}
}

// Convert decodes src and writes a JPEG to dst, carrying the EXIF block over
// when one exists. The source is left in place; removing it is up to the caller
// once Convert has returned nil.
func (c *HEICConverter) Convert(src, dst string) error {
	start := time.Now()

	f, err := os.Open(src)
	if err != nil {
		return mediaerr.IO("open", src, err)
	}
	defer func() {
		if err := f.Close(); err != nil {
			logging.Warn("failed to close %s: %v", src, err)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return mediaerr.IO("stat", src, err)
	}

	img, exifData, err := c.decoder.Decode(f, info.Size())
	if err != nil {
		return mediaerr.Decode("decode heic", src, err)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return mediaerr.Encode("encode jpeg", dst, err)
	}

	out := buf.Bytes()
	if len(exifData) > 0 {
		withExif, err := injectExifSegment(out, exifData)
		if err != nil {
			logging.Warn("dropping EXIF for %s: %v", filepath.Base(src), err)
		} else {
			out = withExif
		}
	}

	if err := filesystem.WriteFileAtomic(dst, out, 0o644); err != nil {
		return mediaerr.IO("write", dst, err)
	}

	b := img.Bounds()
	logging.Debug("converted %s -> %s (%dx%d) in %v",
		filepath.Base(src), filepath.Base(dst), b.Dx(), b.Dy(), time.Since(start))
	return nil
}

package media

import (
	"bytes"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"time"

	"media-pipeline/internal/filesystem"
	"media-pipeline/internal/logging"
	"media-pipeline/internal/mediaerr"
	"media-pipeline/internal/mediatypes"
	"media-pipeline/internal/metrics"

	"github.com/disintegration/imaging"
)

const (
	// MaxImageSize caps the longest edge of a compressed image.
	MaxImageSize = 2048
	// CompressionQuality is the JPEG quality of compressed output.
	CompressionQuality = 80
)

const (
	BackendVips    = "vips"
	BackendImaging = "imaging"
)

// CompressResult describes one compression call.
type CompressResult struct {
	Source      string
	Output      string
	Skipped     bool
	Backend     string
	Dimensions  ImageDimensions
	SourceBytes int64
	OutputBytes int64
}

// Compressor writes size-capped JPEG copies of images, named with the
// compression marker.
type Compressor struct {
	useVips bool
	maxEdge int
	quality int
}

// NewCompressor returns a Compressor. When useVips is set and libvips has been
// initialized, it is tried first with imaging as the fallback.
func NewCompressor(useVips bool) *Compressor {
	return &Compressor{
		useVips: useVips,
		maxEdge: MaxImageSize,
		quality: CompressionQuality,
	}
}

// Compress writes <base>.cps.jpg next to src. Files whose basename already
// carries the marker are skipped. An existing output is never overwritten.
// The source is left in place for the caller to remove.
func (c *Compressor) Compress(src string) (*CompressResult, error) {
	name := filepath.Base(src)
	result := &CompressResult{Source: src}

	if mediatypes.HasCompressionMarker(name) {
		result.Skipped = true
		return result, nil
	}

	dst := filepath.Join(filepath.Dir(src), mediatypes.CompressedName(name))
	result.Output = dst
	if filesystem.Exists(dst) {
		return nil, mediaerr.IO("compress", dst, fmt.Errorf("output already exists"))
	}

	data, err := filesystem.ReadFileWithRetry(src, filesystem.DefaultRetryConfig())
	if err != nil {
		return nil, mediaerr.IO("read", src, err)
	}
	result.SourceBytes = int64(len(data))

	start := time.Now()
	out, dims, backend, err := c.encode(src, data)
	if err != nil {
		return nil, err
	}

	if err := filesystem.WriteFileAtomic(dst, out, 0o644); err != nil {
		return nil, mediaerr.IO("write", dst, err)
	}

	result.Backend = backend
	result.Dimensions = dims
	result.OutputBytes = int64(len(out))

	metrics.ImagesCompressedTotal.WithLabelValues(backend).Inc()
	if saved := result.SourceBytes - result.OutputBytes; saved > 0 {
		metrics.CompressedBytesSaved.Add(float64(saved))
	}

	if logging.IsDebugEnabled() {
		if md, err := ReadMetadata(bytes.NewReader(out)); err == nil {
			logging.Debug("%s metadata: orientation=%d captured=%v gps=%v",
				filepath.Base(dst), md.Orientation, md.CapturedAt, md.HasGPS)
		}
	}
	logging.Debug("compressed %s -> %s via %s (%dx%d, %d -> %d bytes) in %v",
		name, filepath.Base(dst), backend, dims.Width, dims.Height,
		result.SourceBytes, result.OutputBytes, time.Since(start))

	return result, nil
}

func (c *Compressor) encode(src string, data []byte) ([]byte, ImageDimensions, string, error) {
	if c.useVips && IsVipsAvailable() {
		out, dims, err := compressWithVips(data, c.maxEdge, c.quality)
		if err == nil {
			return out, dims, BackendVips, nil
		}
		logging.Debug("vips compression of %s failed, falling back to imaging: %v", filepath.Base(src), err)
	}

	out, dims, err := c.compressWithImaging(src, data)
	if err != nil {
		return nil, ImageDimensions{}, "", err
	}
	return out, dims, BackendImaging, nil
}

// compressWithImaging is the pure Go path. image/jpeg only writes baseline
// JPEG, so this output is not progressive.
func (c *Compressor) compressWithImaging(src string, data []byte) ([]byte, ImageDimensions, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, ImageDimensions{}, mediaerr.Decode("decode", src, err)
	}

	b := img.Bounds()
	if b.Dx() > c.maxEdge || b.Dy() > c.maxEdge {
		img = imaging.Fit(img, c.maxEdge, c.maxEdge, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, ImageDimensions{}, mediaerr.Encode("encode jpeg", src, err)
	}

	out := buf.Bytes()
	if exifData := extractExifSegment(data); exifData != nil {
		withExif, err := injectExifSegment(out, exifData)
		if err != nil {
			logging.Warn("dropping EXIF for %s: %v", filepath.Base(src), err)
		} else {
			out = withExif
		}
	}

	b = img.Bounds()
	return out, ImageDimensions{Width: b.Dx(), Height: b.Dy()}, nil
}

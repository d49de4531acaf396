package media

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"testing"
)

// createTestImage creates a gradient test image and saves it to the given path
func createTestImage(t *testing.T, path string, width, height int, format string) {
	t.Helper()

	if err := os.WriteFile(path, encodeTestImage(t, width, height, format), 0o644); err != nil {
		t.Fatalf("Failed to write test image file: %v", err)
	}
}

func encodeTestImage(t *testing.T, width, height int, format string) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / width),
				G: uint8((y * 255) / height),
				B: 128,
				A: 255,
			})
		}
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "jpeg", "jpg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "png":
		err = png.Encode(&buf, img)
	default:
		t.Fatalf("Unsupported test image format: %s", format)
	}
	if err != nil {
		t.Fatalf("Failed to encode test image: %v", err)
	}
	return buf.Bytes()
}

// orientationExif is a little-endian TIFF block with a single IFD0 entry:
// Orientation = 6 (rotate 90 CW).
var orientationExif = []byte{
	'I', 'I', 0x2a, 0x00, 0x08, 0x00, 0x00, 0x00,
	0x01, 0x00,
	0x12, 0x01, 0x03, 0x00, 0x01, 0x00, 0x00, 0x00, 0x06, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00,
}

// createTestImageWithExif writes a JPEG carrying orientationExif.
func createTestImageWithExif(t *testing.T, path string, width, height int) {
	t.Helper()

	data, err := injectExifSegment(encodeTestImage(t, width, height, "jpeg"), orientationExif)
	if err != nil {
		t.Fatalf("injectExifSegment() error = %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("Failed to write test image file: %v", err)
	}
}

func decodeDimensions(t *testing.T, path string) (int, int) {
	t.Helper()

	dims, err := GetImageDimensions(path)
	if err != nil {
		t.Fatalf("GetImageDimensions(%s) error = %v", path, err)
	}
	return dims.Width, dims.Height
}

// readMetadataFile is ReadMetadata on the file at path.
func readMetadataFile(t *testing.T, path string) (*Metadata, error) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Failed to open %s: %v", path, err)
	}
	defer f.Close()
	return ReadMetadata(f)
}

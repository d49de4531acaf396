package media

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rwcarlsen/goexif/exif"
)

const (
	markerSOI  = 0xd8
	markerEOI  = 0xd9
	markerSOS  = 0xda
	markerAPP1 = 0xe1

	// maxSegmentPayload is the largest payload a JPEG segment length can describe.
	maxSegmentPayload = 0xffff - 2
)

var exifHeader = []byte("Exif\x00\x00")

// ErrExifTooLarge is returned when an EXIF block does not fit in one APP1 segment.
var ErrExifTooLarge = errors.New("exif block exceeds APP1 segment size")

// extractExifSegment returns a copy of the first EXIF APP1 payload of a JPEG
// stream, header included. It returns nil when data is not a JPEG or carries
// no EXIF.
func extractExifSegment(data []byte) []byte {
	if len(data) < 4 || data[0] != 0xff || data[1] != markerSOI {
		return nil
	}

	i := 2
	for i+4 <= len(data) {
		if data[i] != 0xff {
			return nil
		}
		marker := data[i+1]
		switch {
		case marker == 0xff:
			// fill byte
			i++
			continue
		case marker == markerSOS || marker == markerEOI:
			return nil
		case marker == 0x01 || (marker >= 0xd0 && marker <= 0xd7):
			i += 2
			continue
		}

		length := int(data[i+2])<<8 | int(data[i+3])
		if length < 2 || i+2+length > len(data) {
			return nil
		}
		payload := data[i+4 : i+2+length]
		if marker == markerAPP1 && bytes.HasPrefix(payload, exifHeader) {
			return bytes.Clone(payload)
		}
		i += 2 + length
	}
	return nil
}

// injectExifSegment inserts an APP1 segment carrying exifData right after the
// SOI marker of jpegData. exifData may be given with or without the "Exif\0\0"
// header.
func injectExifSegment(jpegData, exifData []byte) ([]byte, error) {
	if len(exifData) == 0 {
		return jpegData, nil
	}
	if len(jpegData) < 2 || jpegData[0] != 0xff || jpegData[1] != markerSOI {
		return nil, fmt.Errorf("not a JPEG stream")
	}

	payload := exifData
	if !bytes.HasPrefix(payload, exifHeader) {
		payload = append(bytes.Clone(exifHeader), payload...)
	}
	if len(payload) > maxSegmentPayload {
		return nil, ErrExifTooLarge
	}

	segLen := len(payload) + 2
	out := make([]byte, 0, len(jpegData)+len(payload)+4)
	out = append(out, 0xff, markerSOI, 0xff, markerAPP1, byte(segLen>>8), byte(segLen&0xff))
	out = append(out, payload...)
	out = append(out, jpegData[2:]...)
	return out, nil
}

// Metadata is the subset of EXIF the pipeline reports on.
type Metadata struct {
	Orientation int
	CapturedAt  time.Time
	HasGPS      bool
}

// ReadMetadata decodes EXIF from a JPEG, TIFF or raw EXIF block.
// Missing individual tags are left at their zero value.
func ReadMetadata(r io.Reader) (*Metadata, error) {
	x, err := exif.Decode(r)
	if err != nil {
		return nil, err
	}

	md := &Metadata{}
	if tag, err := x.Get(exif.Orientation); err == nil {
		if v, err := tag.Int(0); err == nil {
			md.Orientation = v
		}
	}
	if dt, err := x.DateTime(); err == nil {
		md.CapturedAt = dt
	}
	if _, _, err := x.LatLong(); err == nil {
		md.HasGPS = true
	}
	return md, nil
}

package mediatypes

import (
	"path/filepath"
	"strings"
)

// Kind is the semantic media kind of a file, derived from its extension.
type Kind string

const (
	// KindImage is a browser-deliverable still image.
	KindImage Kind = "image"
	// KindVideo is a browser-deliverable video.
	KindVideo Kind = "video"
	// KindHEIC is an HEIC still that must be converted to JPEG.
	KindHEIC Kind = "heic"
	// KindMOV is a QuickTime movie that must be transcoded to MP4.
	KindMOV Kind = "mov"
	// KindAAE is an edit sidecar with no rendering value.
	KindAAE Kind = "aae"
	// KindNone is anything the pipeline does not handle.
	KindNone Kind = "none"
)

const (
	// CompressionMarker is the infix that marks an image as already compressed.
	CompressionMarker = ".cps"

	// ThumbnailSuffix replaces the extension of a media file to name its thumbnail.
	ThumbnailSuffix = "_thumb.jpg"
)

// AAEExtensions, HEICExtensions and MOVExtensions hold the formats that need a
// dedicated stage before they can be served.
var (
	AAEExtensions  = map[string]bool{".aae": true}
	HEICExtensions = map[string]bool{".heic": true}
	MOVExtensions  = map[string]bool{".mov": true}
)

// ImageExtensions maps file extensions to whether they are supported image formats.
var ImageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// VideoExtensions maps file extensions to whether they are supported video formats.
// ".mov" is listed but is always claimed by MOVExtensions first.
var VideoExtensions = map[string]bool{
	".mp4": true,
	".mov": true,
}

// MediaFile is one entry of a directory listing. It is recomputed after every
// mutating stage because names change along the way.
type MediaFile struct {
	Name string
	Kind Kind
}

// Ext returns the lowercase final extension of name including the dot.
func Ext(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// Classify returns the Kind for a filename. Precedence is AAE, HEIC, MOV,
// image, video: a .mov must reach the transcoder, not the pass-through path.
func Classify(name string) Kind {
	ext := Ext(name)
	switch {
	case AAEExtensions[ext]:
		return KindAAE
	case HEICExtensions[ext]:
		return KindHEIC
	case MOVExtensions[ext]:
		return KindMOV
	case ImageExtensions[ext]:
		return KindImage
	case VideoExtensions[ext]:
		return KindVideo
	default:
		return KindNone
	}
}

// IsMedia reports whether kind ends up in the manifest.
func IsMedia(kind Kind) bool {
	return kind == KindImage || kind == KindVideo
}

// Basename returns name without its final extension.
func Basename(name string) string {
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// ReplaceExt swaps the final extension of name for ext (which includes the dot).
func ReplaceExt(name, ext string) string {
	return Basename(name) + ext
}

// HasCompressionMarker reports whether the basename of name carries the marker.
// Only a substring check: "my.cps.trip.jpg" counts as compressed too.
func HasCompressionMarker(name string) bool {
	return strings.Contains(Basename(name), CompressionMarker)
}

// CompressedName returns the name a compressed copy of name is written to.
// The output is always JPEG, so the extension becomes ".jpg".
func CompressedName(name string) string {
	return Basename(name) + CompressionMarker + ".jpg"
}

// ThumbnailName returns the thumbnail filename for a media file.
func ThumbnailName(name string) string {
	return ReplaceExt(name, ThumbnailSuffix)
}

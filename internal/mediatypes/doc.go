// Package mediatypes provides the format classifier and naming rules shared
// across the media pipeline.
//
// This package exists as a dependency-free foundation that can be imported by other
// packages without creating import cycles. It contains primitive types, constants,
// and pure utility functions with no external dependencies beyond the standard library.
//
// # Kinds
//
// Every filename maps to exactly one Kind, decided by its extension alone:
//
//	mediatypes.KindAAE   // .aae edit sidecars, deleted
//	mediatypes.KindHEIC  // .heic stills, converted to JPEG
//	mediatypes.KindMOV   // .mov movies, transcoded to MP4
//	mediatypes.KindImage // .jpg .jpeg .png
//	mediatypes.KindVideo // .mp4
//	mediatypes.KindNone  // everything else
//
// Matching is case-insensitive and there is no content sniffing, so a
// mislabeled extension is routed by its label.
//
// # Naming
//
// Derived files are named from their source:
//
//	mediatypes.CompressedName("photo.png")   // "photo.cps.jpg"
//	mediatypes.ThumbnailName("photo.cps.jpg") // "photo.cps_thumb.jpg"
//	mediatypes.ReplaceExt("IMG_01.HEIC", ".jpg") // "IMG_01.jpg"
//
// The ".cps" marker in a basename is the only record that an image was
// compressed; HasCompressionMarker checks for it.
package mediatypes

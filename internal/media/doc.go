// Package media implements the per-file image work of the pipeline: directory
// scanning, HEIC conversion, size-capped compression, thumbnail generation and
// dimension probing.
package media

// Package main provides the media-pipeline command.
//
// media-pipeline normalizes a flat directory of camera media so a static
// gallery can serve it. A run executes one fixed sequence of stages:
//
//  1. Ensure thumbnails/ exists
//  2. Convert HEIC stills to JPEG (quality 95, EXIF kept)
//  3. Transcode MOV to MP4 with ffmpeg, falling back to a stream copy
//  4. Leave MP4 files untouched
//  5. Compress JPEG and PNG images to at most 2048px as <name>.cps.jpg
//  6. Delete AAE edit sidecars
//  7. Re-list the directory
//  8. Generate 300x300 thumbnails and probe dimensions
//  9. Write media-manifest.json
//
// Every stage re-lists the directory, so the files a stage produces are seen by
// the next one. Sources are removed only after their replacement is written;
// a second run over the same directory changes nothing.
//
// # Commands
//
//	media-pipeline [DIR]              same as run
//	media-pipeline run [DIR]          run every stage over DIR
//	media-pipeline classify FILE...   print the kind of each filename
//	media-pipeline history            list recent runs from the journal
//	media-pipeline version            print build information
//
// # Configuration
//
// Flags, environment variables and an optional --config file are resolved by
// the startup package; see its documentation for the full list of keys.
//
// # Exit Status
//
// The exit status is 1 when the run was aborted (missing directory, manifest
// not written, interrupted) or, with --strict, when any file failed. Per-file
// failures otherwise leave the source in place and are only logged.
//
// # Signals
//
// SIGINT and SIGTERM cancel the run. Running ffmpeg processes are killed and
// no manifest is written for an interrupted run.
package main

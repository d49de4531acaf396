// Package pipeline sequences the normalization stages over one media
// directory.
//
// Stages run strictly in order and every stage re-lists the directory, since
// earlier stages rename, create and delete files:
//
//	ensure-output-dir -> convert-heic -> transcode-mov -> mp4-passthrough ->
//	compress-images -> purge-aae -> rescan -> thumbnails -> write-manifest
//
// A per-file failure is logged with its path, recorded in the stage report and
// never stops the stage. A stage whose listing fails is recorded and the run
// moves on. Only a missing media directory, a thumbnail directory that cannot be
// created, a manifest that cannot be written, or cancellation abort the run.
//
// Within a stage files may be processed by a bounded pool; the stage barrier
// and the write-then-delete order for each file hold either way.
package pipeline

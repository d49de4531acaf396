/*
Package filesystem provides the filesystem primitives the pipeline builds on:
listing, stat, read and delete with retry logic for NFS stale file handle
errors, plus atomic file replacement.

# Retry Behavior

Media folders are often NFS mounts. Operations that fail with ESTALE (errno 116)
are retried with exponential backoff:
  - MaxRetries: 3 attempts
  - InitialBackoff: 50ms
  - MaxBackoff: 500ms

All other errors fail immediately without retry attempts.

	entries, err := filesystem.ReadDirWithRetry(dir, filesystem.DefaultRetryConfig())

# Atomic Writes

WriteFileAtomic writes next to the target and renames into place. The manifest,
thumbnails and converted originals are all written this way, so a crash never
leaves a half-written file under the final name and a source is only deleted
after its replacement is complete.

# Metrics

An Observer set with SetObserver receives per-operation durations and retry
counts. The metrics package provides the Prometheus implementation.
*/
package filesystem

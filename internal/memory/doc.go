// Package memory controls the Go runtime memory budget of a pipeline run.
//
// Image decoding allocates whole frames on the Go heap while FFmpeg and libvips
// allocate outside it. [Configure] sets GOMEMLIMIT to a fraction of the
// container limit so the collector works harder before the container is
// OOM-killed, leaving the remainder for those native allocations.
//
// # Configuration
//
// The limit comes from configuration (MEMORY_LIMIT, typically filled by the
// Kubernetes Downward API) and the ratio from MEMORY_RATIO (default 0.85). An
// explicit GOMEMLIMIT in the environment always wins:
//
//	env:
//	- name: MEMORY_LIMIT
//	  valueFrom:
//	    resourceFieldRef:
//	      resource: limits.memory
//
// # Backpressure
//
// When files are processed by more than one worker, a [Monitor] samples heap
// usage and pauses new files while usage is above the critical watermark,
// resuming once it drops below the high watermark. Files already in flight
// always finish.
package memory

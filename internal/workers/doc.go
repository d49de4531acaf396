/*
Package workers sizes and runs the bounded per-stage worker pool.

# Sizing

When running in containers the number of usable CPUs may be limited by cgroup
constraints. Go sets GOMAXPROCS from the container CPU limit, while
runtime.NumCPU() still returns the host count, so sizing uses GOMAXPROCS:

	// 1 worker per available CPU, at most 8
	n := workers.ForCPU(0, 8)

	// explicit override from configuration wins, still capped
	n := workers.ForCPU(cfg.Workers, 8)

The pipeline defaults to a single worker, which processes files strictly one
after another in listing order. A WORKERS setting above one enables the pool.

# Running

A Pool runs one call per file index with at most Size calls in flight. The
call returns only after every started call has finished, which is the stage
barrier the pipeline relies on:

	pool := workers.NewPool(4, monitor)
	err := pool.Each(ctx, len(files), func(ctx context.Context, i int) {
		process(files[i])
	})

Before each call starts the pool waits on its Gate, if one is set; the memory
monitor uses this to hold back new files under memory pressure. Cancelling ctx
stops new calls from starting and Each returns the context error.
*/
package workers

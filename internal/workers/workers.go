package workers

import (
	"context"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Count returns the number of workers for a task type.
// It respects container CPU limits via GOMAXPROCS (Go 1.19+).
//
// The multiplier scales GOMAXPROCS: 1.0 for CPU-bound work, higher when
// workers mostly wait on I/O or child processes.
//
// A positive override replaces the computed value. The limit caps the result;
// use 0 for no limit.
func Count(override int, multiplier float64, limit int) int {
	workers := override
	if workers <= 0 {
		workers = int(float64(runtime.GOMAXPROCS(0)) * multiplier)
	}

	if workers < 1 {
		workers = 1
	}
	if limit > 0 && workers > limit {
		workers = limit
	}
	return workers
}

// ForCPU returns worker count for CPU-bound tasks (1 per CPU).
func ForCPU(override, limit int) int {
	return Count(override, 1.0, limit)
}

// Gate holds back new work. Wait returns nil when work may start.
type Gate interface {
	Wait(ctx context.Context) error
}

// Pool runs stage work with bounded concurrency.
type Pool struct {
	size int
	gate Gate
}

// NewPool returns a pool of size workers (minimum 1). gate may be nil.
func NewPool(size int, gate Gate) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{size: size, gate: gate}
}

// Size returns the maximum number of concurrent calls.
func (p *Pool) Size() int {
	return p.size
}

// Each calls fn for every index in [0, n) and waits for all of them. With a
// single worker calls run inline, in index order. fn reports its own failures;
// Each only returns a context or gate error.
func (p *Pool) Each(ctx context.Context, n int, fn func(ctx context.Context, i int)) error {
	if p.size == 1 {
		for i := 0; i < n; i++ {
			if err := p.admit(ctx); err != nil {
				return err
			}
			fn(ctx, i)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.size)

	var admitErr error
	for i := 0; i < n; i++ {
		if admitErr = p.admit(gctx); admitErr != nil {
			break
		}
		g.Go(func() error {
			fn(gctx, i)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return admitErr
}

func (p *Pool) admit(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if p.gate == nil {
		return nil
	}
	return p.gate.Wait(ctx)
}

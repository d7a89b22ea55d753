package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// Pool bounds concurrent quantization jobs so device polls never queue
// behind CPU work. Submission blocks until a slot frees or ctx is done.
type Pool struct {
	sem  *semaphore.Weighted
	proc *Processor
}

func NewPool(proc *Processor, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{sem: semaphore.NewWeighted(int64(workers)), proc: proc}
}

// Process runs one pipeline job under the pool's concurrency cap.
func (p *Pool) Process(ctx context.Context, src []byte, params Params) (*Result, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer p.sem.Release(1)

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.proc.Process(src, params)
}

package codec

import (
	"context"
	"runtime"
	"sync"
)

// Pool is a bounded worker pool for CPU-bound decode work. It is sized
// independently of the fetch concurrency bound so that decompression never
// starves pending I/O and vice versa. Workers live for the lifetime of the
// pool and are shared by every read on the owning handle.
type Pool struct {
	jobs chan func()

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewPool starts a pool with the given number of workers; zero or negative
// means one worker per available CPU.
func NewPool(workers int) *Pool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	p := &Pool{jobs: make(chan func())}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer p.wg.Done()
			for fn := range p.jobs {
				fn()
			}
		}()
	}
	return p
}

// Submit queues fn for execution. It blocks while all workers are busy and
// returns the context error if the caller is cancelled first; a job that
// was never submitted is simply abandoned.
func (p *Pool) Submit(ctx context.Context, fn func()) error {
	select {
	case p.jobs <- fn:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting work and waits for running jobs to finish.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		close(p.jobs)
	})
	p.wg.Wait()
}

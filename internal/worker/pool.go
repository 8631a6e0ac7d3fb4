package worker

import (
	"context"
	"errors"
	"log"
	"sync"
)

var (
	ErrQueueFull  = errors.New("worker queue is full")
	ErrPoolClosed = errors.New("worker pool is shut down")
)

const shutdownReason = "service shutting down"

type JobRunner interface {
	Process(ctx context.Context, jobID string) error
	Abort(jobID, reason string)
}

// Pool runs a fixed number of workers over a bounded in-memory queue.
type Pool struct {
	runner  JobRunner
	workers int
	jobs    chan string

	mu     sync.RWMutex
	closed bool
}

func NewPool(runner JobRunner, workers, queueSize int) *Pool {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Pool{
		runner:  runner,
		workers: workers,
		jobs:    make(chan string, queueSize),
	}
}

// Submit enqueues jobID without blocking.
func (p *Pool) Submit(jobID string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.jobs <- jobID:
		return nil
	default:
		return ErrQueueFull
	}
}

// Pending reports how many submitted jobs wait for a free worker.
func (p *Pool) Pending() int {
	return len(p.jobs)
}

// Run blocks until ctx is cancelled and every worker has returned.
// Running engines see the same ctx and are killed; jobs still queued are failed.
func (p *Pool) Run(ctx context.Context) {
	log.Printf("worker pool started: workers=%d queue_size=%d", p.workers, cap(p.jobs))

	// N воркеров
	var wg sync.WaitGroup
	for i := 0; i < p.workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for jobID := range p.jobs {
				// остановка: оставшиеся в очереди задачи сразу в failed
				if ctx.Err() != nil {
					p.runner.Abort(jobID, shutdownReason)
					continue
				}
				if err := p.runner.Process(ctx, jobID); err != nil {
					log.Printf("[worker-%d] process job %s error: %v", n, jobID, err)
				}
			}
		}(i + 1)
	}

	<-ctx.Done()

	p.mu.Lock()
	p.closed = true
	close(p.jobs)
	p.mu.Unlock()

	wg.Wait()
	log.Println("worker pool stopped")
}

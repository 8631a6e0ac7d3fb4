package events

import (
	"context"
	"log"
	"sync"
	"time"

	"transcode-service/internal/entity"
)

// Async hands snapshots to a slow notifier (redis, kafka) on a background
// goroutine, one per job with pending work. Notify never waits on the network.
//
// Only the newest undelivered snapshot of a job is kept. Terminal snapshots are
// the last ones a job produces, so they are always delivered.
type Async struct {
	next    Notifier
	timeout time.Duration

	mu       sync.Mutex
	pending  map[string]entity.Job
	draining map[string]bool
	wg       sync.WaitGroup
}

func NewAsync(next Notifier, timeout time.Duration) *Async {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Async{
		next:     next,
		timeout:  timeout,
		pending:  make(map[string]entity.Job),
		draining: make(map[string]bool),
	}
}

func (a *Async) Notify(_ context.Context, job entity.Job) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pending[job.ID] = job
	if !a.draining[job.ID] {
		a.draining[job.ID] = true
		a.wg.Add(1)
		go a.drain(job.ID)
	}
	return nil
}

func (a *Async) drain(jobID string) {
	defer a.wg.Done()
	for {
		a.mu.Lock()
		job, ok := a.pending[jobID]
		if !ok {
			delete(a.draining, jobID)
			a.mu.Unlock()
			return
		}
		delete(a.pending, jobID)
		a.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Notify(ctx, job); err != nil {
			log.Printf("[events] job_id=%s status=%s notify error=%v", job.ID, job.Status, err)
		}
		cancel()
	}
}

// Wait blocks until every pending snapshot was handed to the wrapped notifier
// or ctx is done.
func (a *Async) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

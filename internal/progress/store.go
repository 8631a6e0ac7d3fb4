// Package progress holds the process-wide table of job snapshots.
//
// Every write replaces the whole snapshot under the lock, so readers never see
// a status that disagrees with its progress.
package progress

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"transcode-service/internal/entity"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrExists        = errors.New("job already exists")
	ErrTerminal      = errors.New("job already in terminal state")
	ErrBadTransition = errors.New("invalid status transition")
	ErrNotQueued     = errors.New("job is not queued")
)

type Store struct {
	mu   sync.RWMutex
	jobs map[string]entity.Job
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		jobs: make(map[string]entity.Job),
		now:  time.Now,
	}
}

// Create registers a new job. Only queued jobs with zero progress are accepted.
func (s *Store) Create(job entity.Job) error {
	if job.ID == "" {
		return errors.New("job id is required")
	}
	job.Status = entity.StatusQueued
	job.Progress = 0
	if job.CreatedAt.IsZero() {
		job.CreatedAt = s.now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrExists
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *Store) Get(id string) (entity.Job, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	return job, ok
}

// List returns snapshots ordered by creation time.
func (s *Store) List() []entity.Job {
	s.mu.RLock()
	out := make([]entity.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Update applies mutate to a copy of the current snapshot and swaps it in.
//
// The new snapshot is normalized before it is stored: progress never goes
// backwards, stays below 100 unless the job is done, and done always carries
// 100. Terminal snapshots are immutable.
func (s *Store) Update(id string, mutate func(job *entity.Job)) (entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	if cur.Status.Terminal() {
		return cur, ErrTerminal
	}

	next := cur
	mutate(&next)
	next.ID = cur.ID

	if next.Status != cur.Status && !cur.Status.CanTransition(next.Status) {
		return cur, fmt.Errorf("%w: %s -> %s", ErrBadTransition, cur.Status, next.Status)
	}

	if next.Progress < cur.Progress {
		next.Progress = cur.Progress
	}
	switch next.Status {
	case entity.StatusDone:
		next.Progress = 100
		next.Error = ""
	default:
		if next.Progress > 99 {
			next.Progress = 99
		}
	}
	if next.Status.Terminal() && next.FinishedAt.IsZero() {
		next.FinishedAt = s.now().UTC()
	}

	s.jobs[id] = next
	return next, nil
}

// Claim moves a queued job to processing in one step. Only one caller can win
// the claim; everyone else gets ErrNotQueued (or ErrTerminal once it finished).
func (s *Store) Claim(id string) (entity.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.jobs[id]
	if !ok {
		return entity.Job{}, ErrNotFound
	}
	switch {
	case cur.Status.Terminal():
		return cur, ErrTerminal
	case cur.Status != entity.StatusQueued:
		return cur, ErrNotQueued
	}

	cur.Status = entity.StatusProcessing
	if cur.Progress < 1 {
		cur.Progress = 1
	}
	cur.StartedAt = s.now().UTC()
	s.jobs[id] = cur
	return cur, nil
}

// Delete forgets a job. Active jobs are kept; reports whether an entry was removed.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || !job.Status.Terminal() {
		return false
	}
	delete(s.jobs, id)
	return true
}

// Remove drops an entry regardless of status. The dispatcher uses it to roll
// back a submission that never reached a worker.
func (s *Store) Remove(id string) {
	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Active reports whether id exists and has not reached a terminal state.
func (s *Store) Active(id string) bool {
	job, ok := s.Get(id)
	return ok && !job.Status.Terminal()
}

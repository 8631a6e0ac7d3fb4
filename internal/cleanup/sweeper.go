// Package cleanup removes stale upload/output files and forgets terminal jobs
// once they are older than the retention window.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"transcode-service/internal/entity"
)

var ErrJobActive = errors.New("job is still active")

type Store interface {
	Get(id string) (entity.Job, bool)
	List() []entity.Job
	Delete(id string) bool
}

// Report summarizes one sweep.
type Report struct {
	Scanned    int   `json:"scanned"`
	Removed    int   `json:"removed"`
	Failed     int   `json:"failed"`
	Reclaimed  int   `json:"reclaimed"`
	DurationMs int64 `json:"duration_ms"`
}

type Sweeper struct {
	store     Store
	dirs      []string
	retention time.Duration
	now       func() time.Time

	group singleflight.Group
}

func NewSweeper(store Store, retention time.Duration, dirs ...string) *Sweeper {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &Sweeper{
		store:     store,
		dirs:      dirs,
		retention: retention,
		now:       time.Now,
	}
}

// Sweep runs one cleanup pass. Concurrent callers share the pass in flight.
func (s *Sweeper) Sweep(ctx context.Context) Report {
	v, _, _ := s.group.Do("sweep", func() (any, error) {
		return s.sweep(ctx), nil
	})
	return v.(Report)
}

func (s *Sweeper) sweep(ctx context.Context) Report {
	start := time.Now()
	cutoff := s.now().Add(-s.retention)
	var rep Report

	for _, job := range s.store.List() {
		if ctx.Err() != nil {
			break
		}
		if !job.Status.Terminal() || job.FinishedAt.IsZero() || job.FinishedAt.After(cutoff) {
			continue
		}
		if err := s.reclaim(job); err != nil {
			rep.Failed++
			log.Printf("[cleanup] job_id=%s reclaim error=%v", job.ID, err)
			continue
		}
		rep.Reclaimed++
	}

	for _, dir := range s.dirs {
		if ctx.Err() != nil {
			break
		}
		s.sweepDir(ctx, dir, cutoff, &rep)
	}

	rep.DurationMs = time.Since(start).Milliseconds()
	if rep.Removed > 0 || rep.Reclaimed > 0 || rep.Failed > 0 {
		log.Printf("[cleanup] scanned=%d removed=%d reclaimed=%d failed=%d duration_ms=%d",
			rep.Scanned, rep.Removed, rep.Reclaimed, rep.Failed, rep.DurationMs)
	}
	return rep
}

func (s *Sweeper) sweepDir(ctx context.Context, dir string, cutoff time.Time, rep *Report) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[cleanup] dir=%s read error=%v", dir, err)
		}
		return
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return
		}
		if !e.Type().IsRegular() {
			continue
		}
		rep.Scanned++

		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		// файлы известных задач убирает только reclaim по FinishedAt
		if id := jobIDFromName(e.Name()); id != "" {
			if _, tracked := s.store.Get(id); tracked {
				continue
			}
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			rep.Failed++
			log.Printf("[cleanup] file=%s remove error=%v", path, err)
			continue
		}
		rep.Removed++
	}
}

// Reclaim forgets a terminal job right away and removes its files.
func (s *Sweeper) Reclaim(jobID string) error {
	job, ok := s.store.Get(jobID)
	if !ok {
		return nil
	}
	if !job.Status.Terminal() {
		return ErrJobActive
	}
	return s.reclaim(job)
}

func (s *Sweeper) reclaim(job entity.Job) error {
	for _, p := range []string{job.OutputPath, job.InputPath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("remove %s: %w", p, err)
		}
	}
	s.store.Delete(job.ID)
	return nil
}

// jobIDFromName returns the job id prefix of "<id>_<name>" and "<id>.mp4".
func jobIDFromName(name string) string {
	if i := strings.IndexAny(name, "_."); i > 0 {
		return name[:i]
	}
	return ""
}

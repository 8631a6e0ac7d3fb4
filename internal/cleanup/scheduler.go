package cleanup

import (
	"context"
	"fmt"
	"log"

	"github.com/robfig/cron/v3"
)

// Scheduler triggers sweeps on a cron expression ("@every 10m", "0 */2 * * *").
type Scheduler struct {
	cron    *cron.Cron
	sweeper *Sweeper
}

func NewScheduler(sweeper *Sweeper, spec string) (*Scheduler, error) {
	c := cron.New()
	s := &Scheduler{cron: c, sweeper: sweeper}
	if _, err := c.AddFunc(spec, s.run); err != nil {
		return nil, fmt.Errorf("cleanup schedule %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) run() {
	s.sweeper.Sweep(context.Background())
}

// Run starts the schedule and blocks until ctx is done; it then waits for a
// running sweep to finish.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	log.Printf("[cleanup] scheduler started entries=%d", len(s.cron.Entries()))
	<-ctx.Done()
	<-s.cron.Stop().Done()
	log.Println("[cleanup] scheduler stopped")
}

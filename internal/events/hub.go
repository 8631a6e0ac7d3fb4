package events

import (
	"context"
	"sync"

	"transcode-service/internal/entity"
)

// Hub hands snapshots to in-process subscribers of a single job.
//
// Delivery never blocks the caller: a subscriber that has not drained its
// previous snapshot gets it replaced by the newer one.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[*Subscription]struct{}
}

type Subscription struct {
	C     <-chan entity.Job
	ch    chan entity.Job
	hub   *Hub
	jobID string
	once  sync.Once
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*Subscription]struct{})}
}

func (h *Hub) Subscribe(jobID string) *Subscription {
	ch := make(chan entity.Job, 1)
	sub := &Subscription{C: ch, ch: ch, hub: h, jobID: jobID}

	h.mu.Lock()
	set, ok := h.subs[jobID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[jobID] = set
	}
	set[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

// Close unregisters the subscription. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if set, ok := h.subs[s.jobID]; ok {
			delete(set, s)
			if len(set) == 0 {
				delete(h.subs, s.jobID)
			}
		}
		h.mu.Unlock()
	})
}

func (h *Hub) Notify(_ context.Context, job entity.Job) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sub := range h.subs[job.ID] {
		select {
		case sub.ch <- job:
		default:
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- job
		}
	}
	return nil
}

// Subscribers reports how many subscriptions exist for jobID.
func (h *Hub) Subscribers(jobID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[jobID])
}

package gateway

import (
	"sort"
	"sync"
	"time"

	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/watch"
)

// WatchSnapshot is the latest known state of one watch.
type WatchSnapshot struct {
	Watch     watch.Key        `json:"watch"`
	State     *reconcile.State `json:"state,omitempty"`
	Countdown string           `json:"countdown,omitempty"`
	Reloads   int              `json:"reloads"`
	Settled   bool             `json:"settled"`
	Reason    string           `json:"reason,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// stateStore keeps the latest snapshot per watch, fed by watch events.
type stateStore struct {
	mu      sync.RWMutex
	watches map[watch.Key]*WatchSnapshot
}

func newStateStore() *stateStore {
	return &stateStore{watches: make(map[watch.Key]*WatchSnapshot)}
}

func (s *stateStore) apply(ev watch.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, ok := s.watches[ev.Watch]
	if !ok {
		snap = &WatchSnapshot{Watch: ev.Watch}
		s.watches[ev.Watch] = snap
	}

	switch ev.Type {
	case watch.EventTypeCountdown:
		snap.Countdown = ev.Text
		// Countdown frames are too frequent to bump UpdatedAt.
		return
	case watch.EventTypeState:
		snap.Settled = false
		snap.Reason = ""
		snap.Countdown = ""
	case watch.EventTypeReload:
		snap.Reloads++
		snap.Reason = ev.Reason
	case watch.EventTypeSettled:
		snap.Settled = true
		snap.Reason = ev.Reason
	}
	if ev.State != nil {
		state := *ev.State
		snap.State = &state
	}
	snap.UpdatedAt = ev.At
}

func (s *stateStore) get(key watch.Key) (WatchSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.watches[key]
	if !ok {
		return WatchSnapshot{}, false
	}
	return *snap, true
}

func (s *stateStore) list() []WatchSnapshot {
	s.mu.RLock()
	out := make([]WatchSnapshot, 0, len(s.watches))
	for _, snap := range s.watches {
		out = append(out, *snap)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].Watch.String() < out[j].Watch.String()
	})
	return out
}

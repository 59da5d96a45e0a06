package reconcile

import (
	"context"
	"time"
)

// Status is the server-authoritative state of a watched resource.
type Status string

const (
	// Contest lifecycle: before -> running -> ended.
	StatusBefore  Status = "before"
	StatusRunning Status = "running"
	StatusEnded   Status = "ended"

	// Submission lifecycle: pending -> resolved.
	StatusPending  Status = "pending"
	StatusResolved Status = "resolved"
)

// Terminal reports whether polling should stop once this status is observed.
func (s Status) Terminal() bool {
	return s == StatusEnded || s == StatusResolved
}

// PollResult is one authoritative server observation. Target is zero for
// resources without a countdown.
type PollResult struct {
	Status    Status    `json:"status"`
	Target    time.Time `json:"target"`
	Timestamp time.Time `json:"timestamp"`
}

// State is the locally held countdown state for one watch.
type State struct {
	Target       time.Time `json:"target"`
	Status       Status    `json:"status"`
	LastPolledAt time.Time `json:"last_polled_at"`
}

// NewState builds the initial state from the first server response.
func NewState(res PollResult, now time.Time) State {
	return State{
		Target:       res.Target,
		Status:       res.Status,
		LastPolledAt: now,
	}
}

// HasCountdown reports whether the state carries a target to count down to.
func (s State) HasCountdown() bool {
	return !s.Target.IsZero()
}

// Source fetches the current authoritative state of one resource.
type Source interface {
	Fetch(ctx context.Context) (PollResult, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context) (PollResult, error)

func (f SourceFunc) Fetch(ctx context.Context) (PollResult, error) { return f(ctx) }

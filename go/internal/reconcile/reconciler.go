package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/countdown"
	"github.com/wykoj/livewatch/go/internal/repeat"
)

// Config holds the cadence of one reconciler.
type Config struct {
	RenderInterval time.Duration
	PollInterval   time.Duration
	FetchTimeout   time.Duration
	DriftTolerance time.Duration

	// StopAt abandons polling once a poll tick lands at or after it.
	// Zero means poll until a terminal status is seen.
	StopAt time.Time
}

// DefaultConfig returns the cadence used by contest pages.
func DefaultConfig() Config {
	return Config{
		RenderInterval: 100 * time.Millisecond,
		PollInterval:   5 * time.Second,
		FetchTimeout:   10 * time.Second,
		DriftTolerance: time.Second,
	}
}

type OutcomeKind int

const (
	// OutcomeNone accompanies an error return.
	OutcomeNone OutcomeKind = iota
	OutcomeReload
	OutcomeTerminal
	OutcomeAbandoned
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeNone:
		return "none"
	case OutcomeReload:
		return "reload"
	case OutcomeTerminal:
		return "terminal"
	case OutcomeAbandoned:
		return "abandoned"
	default:
		return fmt.Sprintf("outcome(%d)", int(k))
	}
}

// Outcome is why Run returned.
type Outcome struct {
	Kind   OutcomeKind
	Reason string
	State  State
	Result *PollResult
}

// Reconciler runs the render loop and the poll loop for one watch. Both loops
// are served by the goroutine inside Run, which is the only writer of state.
type Reconciler struct {
	name    string
	kind    string
	source  Source
	display countdown.Display
	clock   clockwork.Clock
	metrics MetricsCollector
	cfg     Config

	state    State
	renderer *countdown.Renderer
	seq      uint64
	inflight bool
}

type Option func(*Reconciler)

func WithClock(clock clockwork.Clock) Option {
	return func(r *Reconciler) { r.clock = clock }
}

// WithDisplay enables countdown rendering. Without a display only polling runs.
func WithDisplay(d countdown.Display) Option {
	return func(r *Reconciler) { r.display = d }
}

func WithMetrics(m MetricsCollector) Option {
	return func(r *Reconciler) { r.metrics = m }
}

// New creates a reconciler for the watch called name, starting from initial.
func New(name, kind string, source Source, initial State, cfg Config, opts ...Option) *Reconciler {
	r := &Reconciler{
		name:     name,
		kind:     kind,
		source:   source,
		clock:    clockwork.NewRealClock(),
		metrics:  NoOpMetricsCollector{},
		cfg:      cfg,
		state:    initial,
		renderer: countdown.NewRenderer(initial.Target),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// State returns the current state. Only meaningful while Run is not executing.
func (r *Reconciler) State() State {
	return r.state
}

type fetchResult struct {
	seq  uint64
	res  PollResult
	err  error
	took time.Duration
}

// Run blocks until the watch needs a reload, settles, or ctx is done.
func (r *Reconciler) Run(ctx context.Context) (Outcome, error) {
	if r.state.Status.Terminal() {
		return Outcome{
			Kind:   OutcomeTerminal,
			Reason: fmt.Sprintf("status %s is terminal", r.state.Status),
			State:  r.state,
		}, nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan fetchResult)

	poll := repeat.New(r.clock, r.cfg.PollInterval)
	defer poll.Stop()

	var render *repeat.Ticker
	var renderC <-chan time.Time
	if r.display != nil && r.state.HasCountdown() {
		render = repeat.New(r.clock, r.cfg.RenderInterval)
		defer render.Stop()
		renderC = render.C()
	}

	log.Debug().
		Str("watch", r.name).
		Str("status", string(r.state.Status)).
		Time("target", r.state.Target).
		Dur("poll_interval", r.cfg.PollInterval).
		Msg("reconciler started")

	for {
		select {
		case <-ctx.Done():
			return Outcome{Kind: OutcomeNone, State: r.state}, ctx.Err()

		case now := <-renderC:
			frame, ok := r.renderer.Tick(now)
			if !ok {
				continue
			}
			r.display.Show(frame.Text)
			if frame.Expired {
				// Local clock is not authoritative: ask the server instead of
				// assuming the transition happened.
				render.Pause()
				log.Debug().Str("watch", r.name).Msg("countdown reached zero, reconciling")
				r.issue(runCtx, results)
			}

		case now := <-poll.C():
			if !r.cfg.StopAt.IsZero() && !now.Before(r.cfg.StopAt) {
				return Outcome{
					Kind:   OutcomeAbandoned,
					Reason: "polling window closed",
					State:  r.state,
				}, nil
			}
			if r.inflight {
				// A slow judge must not have every answer superseded.
				log.Debug().Str("watch", r.name).Uint64("seq", r.seq).Msg("poll still in flight, skipping tick")
				continue
			}
			r.issue(runCtx, results)

		case fr := <-results:
			if !r.accept(fr) {
				continue
			}

			now := r.clock.Now()
			r.state.LastPolledAt = now
			decision := Decide(r.state, fr.res, now, r.cfg.DriftTolerance)

			switch decision.Action {
			case ActionReload:
				r.metrics.RecordReload(r.kind, decision.Reason)
				log.Info().
					Str("watch", r.name).
					Str("reason", decision.Reason).
					Msg("state mismatch, reloading")
				res := fr.res
				return Outcome{Kind: OutcomeReload, Reason: decision.Reason, State: r.state, Result: &res}, nil

			case ActionStop:
				res := fr.res
				return Outcome{Kind: OutcomeTerminal, Reason: decision.Reason, State: r.state, Result: &res}, nil
			}

			if !fr.res.Target.IsZero() && !fr.res.Target.Equal(r.state.Target) {
				r.state.Target = fr.res.Target
				r.renderer.Retarget(fr.res.Target)
			}
			if render != nil && render.Paused() {
				r.renderer.Retarget(r.state.Target)
				render.Resume()
			}
		}
	}
}

// issue starts a fetch tagged with the next sequence number. Any fetch still
// in flight is superseded.
func (r *Reconciler) issue(ctx context.Context, results chan<- fetchResult) {
	r.seq++
	r.inflight = true
	seq := r.seq

	go func() {
		start := r.clock.Now()
		fetchCtx := ctx
		if r.cfg.FetchTimeout > 0 {
			var cancel context.CancelFunc
			fetchCtx, cancel = context.WithTimeout(ctx, r.cfg.FetchTimeout)
			defer cancel()
		}

		res, err := r.source.Fetch(fetchCtx)
		fr := fetchResult{seq: seq, res: res, err: err, took: r.clock.Since(start)}

		select {
		case results <- fr:
		case <-ctx.Done():
		}
	}()
}

// accept reports whether fr is the latest issued fetch and succeeded.
func (r *Reconciler) accept(fr fetchResult) bool {
	if fr.seq != r.seq {
		r.metrics.RecordStale(r.kind)
		log.Debug().
			Str("watch", r.name).
			Uint64("seq", fr.seq).
			Uint64("latest", r.seq).
			Msg("discarding stale poll result")
		return false
	}

	r.inflight = false
	r.metrics.RecordPoll(r.kind, fr.err == nil, fr.took)
	if fr.err != nil {
		// The next poll tick is the retry.
		log.Warn().Err(fr.err).Str("watch", r.name).Msg("poll failed")
		return false
	}
	return true
}

package watch

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/countdown"
	"github.com/wykoj/livewatch/go/internal/reconcile"
)

// Config holds the cadence of a session.
type Config struct {
	Reconcile reconcile.Config

	// PendingWindow bounds how long after the submission time a pending
	// submission is polled. Zero polls until resolved.
	PendingWindow time.Duration
}

func DefaultContestConfig() Config {
	return Config{Reconcile: reconcile.DefaultConfig()}
}

func DefaultSubmissionConfig() Config {
	cfg := reconcile.DefaultConfig()
	cfg.PollInterval = 3 * time.Second
	return Config{
		Reconcile:     cfg,
		PendingWindow: time.Minute,
	}
}

// Session follows one watch across reloads. A reload throws the local state
// away and rebuilds it from a fresh server response.
type Session struct {
	key      Key
	source   reconcile.Source
	notifier Notifier
	clock    clockwork.Clock
	metrics  reconcile.MetricsCollector
	cfg      Config

	reloads int
}

type SessionOption func(*Session)

func WithSessionClock(clock clockwork.Clock) SessionOption {
	return func(s *Session) { s.clock = clock }
}

func WithSessionMetrics(m reconcile.MetricsCollector) SessionOption {
	return func(s *Session) { s.metrics = m }
}

func NewSession(key Key, source reconcile.Source, notifier Notifier, cfg Config, opts ...SessionOption) *Session {
	s := &Session{
		key:      key,
		source:   source,
		notifier: notifier,
		clock:    clockwork.NewRealClock(),
		metrics:  reconcile.NoOpMetricsCollector{},
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Key() Key {
	return s.key
}

// Reloads returns how many reloads the session has gone through.
func (s *Session) Reloads() int {
	return s.reloads
}

// Run returns nil once the watch settles, or ctx.Err() when cancelled.
func (s *Session) Run(ctx context.Context) error {
	for {
		res, err := s.load(ctx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		state := reconcile.NewState(res, now)
		s.emit(ctx, Event{Type: EventTypeState, State: &state})

		cfg := s.cfg.Reconcile
		if s.key.Kind == KindSubmission && s.cfg.PendingWindow > 0 && !res.Timestamp.IsZero() {
			cfg.StopAt = res.Timestamp.Add(s.cfg.PendingWindow)
			if !state.Status.Terminal() && !now.Before(cfg.StopAt) {
				s.emit(ctx, Event{Type: EventTypeSettled, State: &state, Reason: "submission is older than the pending window"})
				return nil
			}
		}

		opts := []reconcile.Option{
			reconcile.WithClock(s.clock),
			reconcile.WithMetrics(s.metrics),
		}
		if state.HasCountdown() {
			opts = append(opts, reconcile.WithDisplay(countdown.DisplayFunc(func(text string) {
				s.emit(ctx, Event{Type: EventTypeCountdown, Text: text})
			})))
		}

		r := reconcile.New(s.key.String(), string(s.key.Kind), s.source, state, cfg, opts...)
		out, err := r.Run(ctx)
		if err != nil {
			return err
		}

		final := out.State
		switch out.Kind {
		case reconcile.OutcomeReload:
			s.reloads++
			s.emit(ctx, Event{Type: EventTypeReload, State: &final, Reason: out.Reason})
			if out.Reason == reconcile.ReasonTargetElapsed {
				// The server has not caught up yet; reloading at once would
				// spin on the same answer.
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-s.clock.After(s.cfg.Reconcile.PollInterval):
				}
			}
		default:
			s.emit(ctx, Event{Type: EventTypeSettled, State: &final, Reason: out.Reason})
			log.Info().
				Str("watch", s.key.String()).
				Str("outcome", out.Kind.String()).
				Int("reloads", s.reloads).
				Msg("watch settled")
			return nil
		}
	}
}

// load fetches the state a freshly loaded page starts from, retrying every
// poll interval until it succeeds or ctx is done.
func (s *Session) load(ctx context.Context) (reconcile.PollResult, error) {
	for {
		fetchCtx, cancel := s.fetchContext(ctx)
		res, err := s.source.Fetch(fetchCtx)
		cancel()
		if err == nil {
			return res, nil
		}

		log.Warn().Err(err).Str("watch", s.key.String()).Msg("initial load failed, retrying")
		select {
		case <-ctx.Done():
			return reconcile.PollResult{}, ctx.Err()
		case <-s.clock.After(s.cfg.Reconcile.PollInterval):
		}
	}
}

func (s *Session) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.cfg.Reconcile.FetchTimeout > 0 {
		return context.WithTimeout(ctx, s.cfg.Reconcile.FetchTimeout)
	}
	return context.WithCancel(ctx)
}

func (s *Session) emit(ctx context.Context, ev Event) {
	full := newEvent(s.key, ev.Type, s.clock.Now())
	full.State = ev.State
	full.Text = ev.Text
	full.Reason = ev.Reason
	if err := s.notifier.Notify(ctx, full); err != nil {
		log.Error().Err(err).
			Str("watch", s.key.String()).
			Str("event_type", string(ev.Type)).
			Msg("failed to deliver watch event")
	}
}

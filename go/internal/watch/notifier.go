package watch

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
)

// Notifier receives watch events. Implementations must not block for long;
// countdown events arrive at render cadence.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, ev Event) error

func (f NotifierFunc) Notify(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Notifiers fans an event out to every notifier and joins their errors.
type Notifiers []Notifier

func (ns Notifiers) Notify(ctx context.Context, ev Event) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes events to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, ev Event) error {
	if ev.Type == EventTypeCountdown {
		log.Trace().Str("watch", ev.Watch.String()).Str("text", ev.Text).Msg("countdown")
		return nil
	}

	e := log.Info().
		Str("watch", ev.Watch.String()).
		Str("event_type", string(ev.Type))
	if ev.State != nil {
		e = e.Str("status", string(ev.State.Status))
		if ev.State.HasCountdown() {
			e = e.Time("target", ev.State.Target)
		}
	}
	if ev.Reason != "" {
		e = e.Str("reason", ev.Reason)
	}
	e.Msg("watch event")
	return nil
}

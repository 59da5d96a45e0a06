package watch

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/repeat"
)

// DefaultLeaderboardInterval is how often a running contest's results are
// reloaded.
const DefaultLeaderboardInterval = 15 * time.Second

// LeaderboardRefresher reloads a contest's results view on a fixed interval
// until the contest has ended.
type LeaderboardRefresher struct {
	key      Key
	source   reconcile.Source
	notifier Notifier
	clock    clockwork.Clock
	interval time.Duration
}

func NewLeaderboardRefresher(contestID string, source reconcile.Source, notifier Notifier, interval time.Duration, clock clockwork.Clock) *LeaderboardRefresher {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if interval <= 0 {
		interval = DefaultLeaderboardInterval
	}
	return &LeaderboardRefresher{
		key:      Key{Kind: KindLeaderboard, ID: contestID},
		source:   source,
		notifier: notifier,
		clock:    clock,
		interval: interval,
	}
}

func (l *LeaderboardRefresher) Key() Key {
	return l.key
}

// Run returns nil once the contest is seen as ended.
func (l *LeaderboardRefresher) Run(ctx context.Context) error {
	if l.ended(ctx) {
		return nil
	}

	tk := repeat.New(l.clock, l.interval)
	return tk.Run(ctx, func(time.Time) bool {
		l.notify(ctx, newEvent(l.key, EventTypeReload, l.clock.Now()), "results refresh")
		return !l.ended(ctx)
	})
}

// ended fetches the contest status. A failed fetch counts as not ended so the
// next interval tries again.
func (l *LeaderboardRefresher) ended(ctx context.Context) bool {
	res, err := l.source.Fetch(ctx)
	if err != nil {
		log.Warn().Err(err).Str("watch", l.key.String()).Msg("leaderboard status check failed")
		return false
	}

	state := reconcile.NewState(res, l.clock.Now())
	if res.Status != reconcile.StatusEnded {
		ev := newEvent(l.key, EventTypeState, l.clock.Now())
		ev.State = &state
		l.notify(ctx, ev, "")
		return false
	}

	ev := newEvent(l.key, EventTypeSettled, l.clock.Now())
	ev.State = &state
	l.notify(ctx, ev, "contest ended")
	return true
}

func (l *LeaderboardRefresher) notify(ctx context.Context, ev Event, reason string) {
	ev.Reason = reason
	if err := l.notifier.Notify(ctx, ev); err != nil {
		log.Error().Err(err).Str("watch", l.key.String()).Msg("failed to deliver watch event")
	}
}

package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/clients/judge_client"
	"github.com/wykoj/livewatch/go/internal/events"
	"github.com/wykoj/livewatch/go/internal/gateway"
	"github.com/wykoj/livewatch/go/internal/journal"
	"github.com/wykoj/livewatch/go/internal/reconcile"
	"github.com/wykoj/livewatch/go/internal/watch"
)

type Services struct {
	Judge     *judge_client.JudgeClient
	Gateway   *gateway.Service
	Publisher *events.JetStreamPublisher
	Journal   *journal.Journal
	Metrics   *reconcile.CountingMetrics
	Watches   *watchRegistry

	notifier watch.Notifier
}

func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	// Judge client → gateway → optional publisher and journal, all fed by
	// one fan-out notifier.
	judge := judge_client.NewJudgeClient(cfg.Judge.BaseURL)
	judge.SetTimeout(cfg.Judge.FetchTimeout)

	services := &Services{
		Judge:   judge,
		Metrics: &reconcile.CountingMetrics{},
	}
	services.Watches = newWatchRegistry(ctx, func(key watch.Key) runner {
		return services.newRunner(cfg, key)
	})
	// Subscribing to a watch nobody configured starts it.
	services.Gateway = gateway.NewService(gateway.DefaultConfig(), judge, nil,
		gateway.WithStarter(services.Watches))
	notifiers := watch.Notifiers{watch.LogNotifier{}, services.Gateway}

	if cfg.NATS.Enabled {
		jsCfg := events.DefaultJetStreamConfig()
		jsCfg.URL = cfg.NATS.URL
		publisher, err := events.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		services.Publisher = publisher
		notifiers = append(notifiers, publisher)
	}

	if cfg.Journal.Enabled {
		j, err := journal.Open(ctx, cfg.Journal.Database)
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to open journal: %w", err)
		}
		services.Journal = j
		notifiers = append(notifiers, j)
	}

	services.notifier = notifiers
	return services, nil
}

func (s *Services) Close() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Journal != nil {
		if err := s.Journal.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close journal")
		}
	}
}

type runner interface {
	Run(ctx context.Context) error
}

// newRunner builds the session or refresher that follows key.
func (s *Services) newRunner(cfg *Config, key watch.Key) runner {
	switch key.Kind {
	case watch.KindContest:
		return watch.NewSession(key, watch.ContestSource(s.Judge, key.ID), s.notifier,
			cfg.contestConfig(), watch.WithSessionMetrics(s.Metrics))
	case watch.KindSubmission:
		return watch.NewSession(key, watch.SubmissionSource(s.Judge, key.ID), s.notifier,
			cfg.submissionConfig(), watch.WithSessionMetrics(s.Metrics))
	case watch.KindLeaderboard:
		return watch.NewLeaderboardRefresher(key.ID, watch.ContestSource(s.Judge, key.ID), s.notifier,
			cfg.Intervals.Leaderboard, nil)
	}
	return nil
}

var errUnsupportedWatch = errors.New("unsupported watch kind")

var _ gateway.Starter = (*watchRegistry)(nil)

// watchRegistry runs at most one session per watch key. A key is released
// when its session returns, so a later subscriber starts it again.
type watchRegistry struct {
	ctx   context.Context
	build func(watch.Key) runner

	mu      sync.Mutex
	running map[watch.Key]struct{}
	wg      sync.WaitGroup
}

func newWatchRegistry(ctx context.Context, build func(watch.Key) runner) *watchRegistry {
	return &watchRegistry{
		ctx:     ctx,
		build:   build,
		running: make(map[watch.Key]struct{}),
	}
}

// Ensure implements gateway.Starter.
func (w *watchRegistry) Ensure(key watch.Key) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.ctx.Err(); err != nil {
		return err
	}
	if _, ok := w.running[key]; ok {
		return nil
	}
	r := w.build(key)
	if r == nil {
		return fmt.Errorf("%w: %s", errUnsupportedWatch, key.Kind)
	}

	w.running[key] = struct{}{}
	w.wg.Add(1)
	go w.run(key, r)
	return nil
}

func (w *watchRegistry) run(key watch.Key, r runner) {
	defer w.wg.Done()
	defer func() {
		w.mu.Lock()
		delete(w.running, key)
		w.mu.Unlock()
	}()

	log.Info().Str("watch", key.String()).Msg("watch started")
	if err := r.Run(w.ctx); err != nil && w.ctx.Err() == nil {
		log.Error().Err(err).Str("watch", key.String()).Msg("watch failed")
	}
}

func (w *watchRegistry) Running(key watch.Key) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, ok := w.running[key]
	return ok
}

// Wait blocks until every started watch has returned.
func (w *watchRegistry) Wait() {
	w.wg.Wait()
}

// startWatches starts every configured watch.
func startWatches(cfg *Config, services *Services) {
	for _, key := range cfg.Watches {
		if err := services.Watches.Ensure(key); err != nil {
			log.Warn().Err(err).Str("watch", key.String()).Msg("skipping watch")
		}
	}
}

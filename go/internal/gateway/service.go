// Package gateway pushes watch events to browsers over WebSocket and serves
// the latest watch state over HTTP.
package gateway

import (
	"context"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/search"
	"github.com/wykoj/livewatch/go/internal/watch"
)

// JudgeAPI is the part of the judge client the gateway calls directly.
type JudgeAPI interface {
	search.Searcher
	UserFetcher
}

// Starter starts following a watch. Ensure must be cheap for a watch that is
// already running.
type Starter interface {
	Ensure(key watch.Key) error
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	starter Starter
}

// WithStarter makes the gateway start a watch when its first subscriber
// connects. Without it, subscribers only see watches started elsewhere.
func WithStarter(st Starter) Option {
	return func(o *serviceOptions) { o.starter = st }
}

// Service is the watch gateway: a watch.Notifier that fans events out to
// subscribed WebSocket connections.
type Service struct {
	connectionManager *ConnectionManager
	store             *stateStore
	wsHandler         *WebSocketHandler
	stateHandler      *StateHandler
	statsHandler      *StatsHandler
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
}

func DefaultConfig() Config {
	return Config{ConnectionConfig: DefaultConnectionConfig()}
}

// NewService creates a gateway. judge may be nil, which disables search and
// the language breakdown route.
func NewService(config Config, judge JudgeAPI, clock clockwork.Clock, opts ...Option) *Service {
	var o serviceOptions
	for _, opt := range opts {
		opt(&o)
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	var searcher search.Searcher
	if judge != nil {
		searcher = judge
	}
	store := newStateStore()
	cm := NewConnectionManager(config.ConnectionConfig, searcher, clock)

	s := &Service{
		connectionManager: cm,
		store:             store,
		wsHandler:         NewWebSocketHandler(cm, store, o.starter),
		stateHandler:      NewStateHandler(store, cm, clock),
	}
	if judge != nil {
		s.statsHandler = NewStatsHandler(judge)
	}
	return s
}

// Start runs the broadcaster until ctx is done.
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting watch gateway")
	s.connectionManager.Start(ctx)
	log.Info().Msg("watch gateway stopped")
	return nil
}

// Notify implements watch.Notifier.
func (s *Service) Notify(ctx context.Context, ev watch.Event) error {
	s.store.apply(ev)

	msg, err := newWatchMessage(ev)
	if err != nil {
		return err
	}
	s.connectionManager.BroadcastToWatch(ev.Watch, msg)
	return nil
}

func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	s.stateHandler.RegisterStateRoutes(mux)
	if s.statsHandler != nil {
		s.statsHandler.RegisterRoutes(mux)
	}
	log.Info().Msg("watch gateway routes registered")
}

// GetStats returns connection statistics for the health endpoint.
func (s *Service) GetStats() ConnectionStats {
	return s.connectionManager.GetConnectionStats()
}

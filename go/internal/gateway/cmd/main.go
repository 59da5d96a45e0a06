// Command gateway serves watch events to browsers from NATS, for deployments
// where the watches run in another process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/clients/judge_client"
	"github.com/wykoj/livewatch/go/internal/events"
	"github.com/wykoj/livewatch/go/internal/gateway"
)

type gatewayEnv struct {
	Port     string `env:"GATEWAY_PORT" envDefault:"8081"`
	NATSURL  string `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	JudgeURL string `env:"JUDGE_BASE_URL" envDefault:"http://localhost:3000"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var cfg gatewayEnv
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("failed to parse environment")
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gw := gateway.NewService(gateway.DefaultConfig(), judge_client.NewJudgeClient(cfg.JudgeURL), nil)

	jsCfg := events.DefaultJetStreamConfig()
	jsCfg.URL = cfg.NATSURL
	consumer, err := events.NewConsumer(ctx, jsCfg, gw)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create event consumer")
	}
	defer consumer.Stop()

	go gw.Start(ctx)
	go func() {
		if err := consumer.Start(ctx); err != nil {
			log.Error().Err(err).Msg("event consumer failed")
		}
	}()

	mux := http.NewServeMux()
	gw.RegisterRoutes(mux)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: cors.AllowAll().Handler(mux),
	}

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("port", cfg.Port).
		Msg("starting watch gateway")

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	server.Shutdown(shutdownCtx)
}

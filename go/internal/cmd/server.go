package main

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

func setupServer(cfg *Config, services *Services) *http.Server {
	mux := http.NewServeMux()

	c := cors.New(cors.Options{
		AllowedMethods: []string{
			http.MethodHead,
			http.MethodGet,
		},
		AllowedOrigins: []string{"*"},
		AllowedHeaders: []string{"*"},
	})

	services.Gateway.RegisterRoutes(mux)
	setupHealthCheck(mux, services)

	handler := c.Handler(mux)

	return &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Gateway.Port),
		Handler: h2c.NewHandler(handler, &http2.Server{}),
	}
}

type healthResponse struct {
	Status      string            `json:"status"`
	Polls       map[string]uint64 `json:"polls"`
	Connections int               `json:"connections"`
	Watches     int               `json:"watches"`
	NATS        string            `json:"nats,omitempty"`
}

func setupHealthCheck(mux *http.ServeMux, services *Services) {
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := services.Gateway.GetStats()
		resp := healthResponse{
			Status:      "ok",
			Polls:       services.Metrics.Snapshot(),
			Connections: stats.TotalConnections,
			Watches:     stats.ActiveWatches,
		}
		status := http.StatusOK
		if services.Publisher != nil {
			resp.NATS = services.Publisher.Conn().Status().String()
			if !services.Publisher.Conn().IsConnected() {
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			log.Error().Err(err).Msg("failed to write health check response")
		}
	})
}

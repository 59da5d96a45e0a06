package gateway

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/countdown"
	"github.com/wykoj/livewatch/go/internal/watch"
)

// StateHandler handles HTTP requests for watch state
type StateHandler struct {
	store *stateStore
	cm    *ConnectionManager
	clock clockwork.Clock
}

func NewStateHandler(store *stateStore, cm *ConnectionManager, clock clockwork.Clock) *StateHandler {
	return &StateHandler{store: store, cm: cm, clock: clock}
}

// WatchSummary is one row of GET /api/watches.
type WatchSummary struct {
	WatchSnapshot
	Connections int `json:"connections"`
}

// HandleListWatches handles GET /api/watches
func (h *StateHandler) HandleListWatches(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	snaps := h.store.list()
	out := make([]WatchSummary, 0, len(snaps))
	for _, snap := range snaps {
		out = append(out, WatchSummary{
			WatchSnapshot: h.withCountdown(snap),
			Connections:   h.cm.Count(snap.Watch),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGetWatchState handles GET /api/watches/{kind}/{id}/state
func (h *StateHandler) HandleGetWatchState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw := extractWatchKeyFromPath(r.URL.Path)
	if raw == "" {
		http.Error(w, "Watch key is required", http.StatusBadRequest)
		return
	}
	key, err := watch.ParseKey(raw)
	if err != nil {
		http.Error(w, "Invalid watch key", http.StatusBadRequest)
		return
	}

	snap, ok := h.store.get(key)
	if !ok {
		http.Error(w, "Watch not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.withCountdown(snap))
}

// withCountdown fills the countdown text from the target at request time.
func (h *StateHandler) withCountdown(snap WatchSnapshot) WatchSnapshot {
	if snap.State == nil || !snap.State.HasCountdown() || snap.State.Status.Terminal() {
		snap.Countdown = ""
		return snap
	}
	text, ok := countdown.Format(snap.State.Target.Sub(h.clock.Now()))
	if !ok {
		text = countdown.ExpiredText
	}
	snap.Countdown = text
	return snap
}

func (h *StateHandler) RegisterStateRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/watches", h.HandleListWatches)
	mux.HandleFunc("/api/watches/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/state") {
			h.HandleGetWatchState(w, r)
		} else {
			http.NotFound(w, r)
		}
	})
}

// extractWatchKeyFromPath extracts "kind/id" from /api/watches/{kind}/{id}/state
func extractWatchKeyFromPath(path string) string {
	const prefix = "/api/watches/"
	const suffix = "/state"

	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	return path[len(prefix) : len(path)-len(suffix)]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

package gateway

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/internal/watch"
)

// WebSocketHandler handles WebSocket upgrade requests for watch connections
type WebSocketHandler struct {
	connectionManager *ConnectionManager
	store             *stateStore
	starter           Starter
}

// NewWebSocketHandler creates the handler. starter may be nil.
func NewWebSocketHandler(cm *ConnectionManager, store *stateStore, starter Starter) *WebSocketHandler {
	return &WebSocketHandler{
		connectionManager: cm,
		store:             store,
		starter:           starter,
	}
}

// HandleWatchConnection handles GET /ws/watch?watch=kind/id
func (h *WebSocketHandler) HandleWatchConnection(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("watch")
	if raw == "" {
		http.Error(w, "watch is required", http.StatusBadRequest)
		return
	}

	key, err := watch.ParseKey(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Late joiners start from the latest known state.
	var initial *Message
	if snap, ok := h.store.get(key); ok && snap.State != nil {
		typ := watch.EventTypeState
		if snap.Settled {
			typ = watch.EventTypeSettled
		}
		ev := watch.Event{ID: uuid.New(), Watch: key, Type: typ, State: snap.State, Reason: snap.Reason, At: snap.UpdatedAt}
		if msg, err := newWatchMessage(ev); err == nil {
			initial = msg
		}
	}

	// The upgrader has already written an error response on failure.
	if err := h.connectionManager.UpgradeConnection(w, r, key, initial); err != nil {
		log.Error().
			Err(err).
			Str("watch", key.String()).
			Msg("failed to upgrade WebSocket connection")
		return
	}

	// The connection is registered, so it receives the first event of a
	// watch started here.
	if h.starter != nil {
		if err := h.starter.Ensure(key); err != nil {
			log.Warn().Err(err).Str("watch", key.String()).Msg("failed to start watch for subscriber")
		}
	}
}

// HandleConnectionStats handles GET /ws/stats
func (h *WebSocketHandler) HandleConnectionStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.connectionManager.GetConnectionStats())
}

func (h *WebSocketHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws/watch", h.HandleWatchConnection)
	mux.HandleFunc("/ws/stats", h.HandleConnectionStats)
}

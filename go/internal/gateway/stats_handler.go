package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/wykoj/livewatch/go/clients"
	"github.com/wykoj/livewatch/go/clients/judge_client"
	"github.com/wykoj/livewatch/go/internal/stats"
)

// UserFetcher loads a user profile from the judge.
type UserFetcher interface {
	GetUser(ctx context.Context, username string) (*judge_client.UserProfile, error)
}

// LanguagesResponse is the body of GET /api/users/{username}/languages.
type LanguagesResponse struct {
	Username string        `json:"username"`
	Total    int           `json:"total"`
	Slices   []stats.Slice `json:"slices"`
}

type StatsHandler struct {
	users UserFetcher
}

func NewStatsHandler(users UserFetcher) *StatsHandler {
	return &StatsHandler{users: users}
}

// HandleGetLanguages handles GET /api/users/{username}/languages
func (h *StatsHandler) HandleGetLanguages(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	username := extractUsernameFromPath(r.URL.Path)
	if username == "" {
		http.NotFound(w, r)
		return
	}

	profile, err := h.users.GetUser(r.Context(), username)
	if err != nil {
		var statusErr *clients.StatusError
		if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
			http.Error(w, "User not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Str("username", username).Msg("failed to get user")
		http.Error(w, "Failed to get user", http.StatusBadGateway)
		return
	}

	slices, err := stats.Breakdown(profile.SubmissionLanguages)
	if err != nil {
		log.Error().Err(err).Str("username", username).Msg("malformed submission languages")
		http.Error(w, "Malformed submission languages", http.StatusBadGateway)
		return
	}

	writeJSON(w, http.StatusOK, LanguagesResponse{
		Username: username,
		Total:    stats.Total(slices),
		Slices:   slices,
	})
}

func (h *StatsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/users/", h.HandleGetLanguages)
}

// extractUsernameFromPath extracts the username from /api/users/{username}/languages
func extractUsernameFromPath(path string) string {
	const prefix = "/api/users/"
	const suffix = "/languages"

	if len(path) <= len(prefix)+len(suffix) {
		return ""
	}
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return ""
	}
	username := path[len(prefix) : len(path)-len(suffix)]
	if username == "" || strings.Contains(username, "/") {
		return ""
	}
	return username
}

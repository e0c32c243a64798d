package handlers

import (
	"net/http"

	"github.com/Hofman2HQ/LookALike/internal/config"
	"github.com/Hofman2HQ/LookALike/internal/database"
)

// ConfigHandler handles configuration endpoints
type ConfigHandler struct {
	config *config.Config
}

// NewConfigHandler creates a new config handler
func NewConfigHandler(cfg *config.Config) *ConfigHandler {
	return &ConfigHandler{
		config: cfg,
	}
}

// ConfigResponse represents the public search configuration
type ConfigResponse struct {
	TopK           int     `json:"top_k"`
	ScoreThreshold float64 `json:"score_threshold"`
	SearchMode     string  `json:"search_mode"`
	Backend        string  `json:"backend"`
	PhotoBaseURL   string  `json:"photo_base_url"`
	PostgresReady  bool    `json:"postgres_ready"`
}

// Get returns the search defaults clients need to render results
func (h *ConfigHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, ConfigResponse{
		TopK:           h.config.Search.TopK,
		ScoreThreshold: h.config.Search.ScoreThreshold,
		SearchMode:     h.config.Search.Mode,
		Backend:        h.config.Search.Backend,
		PhotoBaseURL:   h.config.Data.PhotoBaseURL,
		PostgresReady:  database.IsInitialized(),
	})
}

package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Hofman2HQ/LookALike/internal/constants"
	"github.com/Hofman2HQ/LookALike/internal/database"
	"github.com/Hofman2HQ/LookALike/internal/fingerprint"
	"github.com/Hofman2HQ/LookALike/internal/imaging"
	"github.com/Hofman2HQ/LookALike/internal/pipeline"
)

// MatchRequest represents a look-alike query
type MatchRequest struct {
	ImageBase64    string   `json:"image_base64"`
	TopK           *int     `json:"top_k,omitempty"`
	ScoreThreshold *float64 `json:"score_threshold,omitempty"`
}

// MatchResponse represents the look-alike query response
type MatchResponse struct {
	QueryID   string                 `json:"query_id"`
	Timestamp string                 `json:"timestamp"`
	Matches   []database.MatchResult `json:"matches"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	IndexSize int    `json:"index_size"`
	Embedder  string `json:"embedder"`
	Detector  string `json:"detector"`
}

// MatchHandler serves look-alike queries.
type MatchHandler struct {
	matcher   *pipeline.Matcher
	topK      int
	threshold float64
	now       func() time.Time
}

// NewMatchHandler creates a handler with the default top_k and threshold.
func NewMatchHandler(matcher *pipeline.Matcher, topK int, threshold float64) *MatchHandler {
	if topK < 1 {
		topK = constants.DefaultTopK
	}
	return &MatchHandler{
		matcher:   matcher,
		topK:      topK,
		threshold: threshold,
		now:       time.Now,
	}
}

func (h *MatchHandler) newResponse(matches []database.MatchResult) MatchResponse {
	return MatchResponse{
		QueryID:   uuid.NewString(),
		Timestamp: h.now().UTC().Format(time.RFC3339Nano),
		Matches:   matches,
	}
}

// Match handles POST /match.
func (h *MatchHandler) Match(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)

	var req MatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	topK := h.topK
	if req.TopK != nil {
		topK = *req.TopK
	}
	threshold := h.threshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}
	if topK < 1 {
		respondError(w, http.StatusBadRequest, database.ErrInvalidTopK.Error())
		return
	}

	if strings.TrimSpace(req.ImageBase64) == "" {
		respondJSON(w, http.StatusOK, h.newResponse([]database.MatchResult{}))
		return
	}

	img, err := imaging.DecodeBase64(req.ImageBase64)
	switch {
	case errors.Is(err, imaging.ErrEmptyImage):
		respondJSON(w, http.StatusOK, h.newResponse([]database.MatchResult{}))
		return
	case err != nil:
		slog.Debug("rejecting match request", "error", sanitizeForLog(err.Error()))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	matches, err := h.matcher.Match(r.Context(), img, topK, threshold)
	if err != nil {
		slog.Error("match failed", "error", err)
		switch {
		case errors.Is(err, fingerprint.ErrModelUnavailable):
			respondError(w, http.StatusBadGateway, "embedding model unavailable")
		case errors.Is(err, database.ErrInvalidTopK):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			respondError(w, http.StatusInternalServerError, "failed to match image")
		}
		return
	}

	respondJSON(w, http.StatusOK, h.newResponse(matches))
}

// Health handles GET /health.
func (h *MatchHandler) Health(w http.ResponseWriter, _ *http.Request) {
	p := h.matcher.Pipeline()
	respondJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		IndexSize: h.matcher.Size(),
		Embedder:  p.Embedder().Name(),
		Detector:  p.Preprocessor().DetectorName(),
	})
}

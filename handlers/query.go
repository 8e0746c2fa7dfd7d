package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"

	"streamhub/models"
	"streamhub/services/aggregate"
)

type aggregateService interface {
	Aggregate(ctx context.Context, q models.Query) (*models.AggregateResult, error)
}

var _ aggregateService = (*aggregate.Service)(nil)

type streamResolver interface {
	Resolve(ctx context.Context, streams []models.Stream, provider, token string) []models.Stream
}

// QueryHandler serves the main lookup endpoint: it fans the query out to
// every configured source and returns the merged result.
type QueryHandler struct {
	Aggregator aggregateService
	Resolver   streamResolver
}

func NewQueryHandler(agg aggregateService, res streamResolver) *QueryHandler {
	return &QueryHandler{Aggregator: agg, Resolver: res}
}

type queryRequest struct {
	models.Query
	DebridProvider string `json:"debridProvider"`
	DebridToken    string `json:"debridToken"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	reqID := uuid.NewString()[:8]
	start := time.Now()
	log.Printf("[query] %s lookup %q id=%q type=%s s=%d e=%d", reqID, req.Text, req.ExternalID, req.MediaType, req.Season, req.Episode)

	result, err := h.Aggregator.Aggregate(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, aggregate.ErrInvalidQuery) {
			writeJSONError(w, "query text or external id is required", http.StatusBadRequest)
			return
		}
		log.Printf("[query] %s failed: %v", reqID, err)
		writeJSONError(w, "lookup failed", http.StatusInternalServerError)
		return
	}

	if h.Resolver != nil && req.DebridToken != "" {
		result.Streams = h.Resolver.Resolve(r.Context(), result.Streams, req.DebridProvider, req.DebridToken)
	}

	log.Printf("[query] %s done: %d items, %d streams, %d source errors in %s",
		reqID, len(result.Items), len(result.Streams), len(result.SourceErrors), time.Since(start).Round(time.Millisecond))
	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("[handlers] encode response: %v", err)
	}
}

func writeJSONError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}

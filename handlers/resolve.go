package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"streamhub/models"
)

// ResolveHandler converts magnet streams into direct links on demand,
// without re-running the source lookup.
type ResolveHandler struct {
	Resolver streamResolver
}

func NewResolveHandler(res streamResolver) *ResolveHandler {
	return &ResolveHandler{Resolver: res}
}

type resolveRequest struct {
	Streams  []models.Stream `json:"streams"`
	Provider string          `json:"provider"`
	Token    string          `json:"token"`
}

type resolveResponse struct {
	Streams []models.Stream `json:"streams"`
}

func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Streams) == 0 {
		writeJSON(w, http.StatusOK, resolveResponse{Streams: []models.Stream{}})
		return
	}

	log.Printf("[resolve] %d streams via %q", len(req.Streams), req.Provider)
	resolved := h.Resolver.Resolve(r.Context(), req.Streams, req.Provider, req.Token)
	writeJSON(w, http.StatusOK, resolveResponse{Streams: resolved})
}

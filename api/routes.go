package api

import (
	"net/http"

	"streamhub/handlers"

	"github.com/gorilla/mux"
)

// corsMiddleware handles CORS for API routes
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Register mounts API endpoints onto the provided router.
func Register(
	r *mux.Router,
	queryHandler *handlers.QueryHandler,
	resolveHandler *handlers.ResolveHandler,
) {
	api := r.PathPrefix("/api").Subrouter()
	api.Use(corsMiddleware)

	api.HandleFunc("/query", queryHandler.Query).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/resolve", resolveHandler.Resolve).Methods(http.MethodPost, http.MethodOptions)

	r.HandleFunc("/health", handlers.Health).Methods(http.MethodGet)
}

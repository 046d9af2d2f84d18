package api

import (
	"encoding/json"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"orderdesk/internal/httpapi"
)

// newMux assembles the backend routes, the metrics endpoint and the
// execution feed.
func newMux(backend *httpapi.BackendServer, hub *Hub) http.Handler {
	mux := http.NewServeMux()
	backend.RegisterRoutes(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /ws", hub.ServeWS)
	mux.HandleFunc("GET /executions/recent", handleRecentReports(hub))
	return httpapi.CORS(mux)
}

// handleRecentReports returns the hub's backlog, for clients that connect
// to the feed late.
func handleRecentReports(hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(hub.Recent())
	}
}

package apiserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// registerRoutes wires all API v1 routes into the server mux.
func (s *Server) registerRoutes() {
	// Health probes
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.HandleFunc("GET /readyz", s.handleReadyz)

	// Metrics endpoints
	s.mux.HandleFunc("GET /metrics", s.metrics.PrometheusHandler())
	s.mux.HandleFunc("GET /api/v1/status", s.handleStatus)

	// Nodes
	s.mux.HandleFunc("GET /api/v1/nodes", s.handleListNodes)
	s.mux.HandleFunc("POST /api/v1/nodes", s.handleJoinNode)
	s.mux.HandleFunc("GET /api/v1/nodes/{id}", s.handleGetNode)
	s.mux.HandleFunc("DELETE /api/v1/nodes/{id}", s.handleLeaveNode)
	s.mux.HandleFunc("POST /api/v1/nodes/{id}/heartbeat", s.handleNodeHeartbeat)
	s.mux.HandleFunc("POST /api/v1/nodes/{id}/reachability", s.handleNodeReachability)

	// Assets
	s.mux.HandleFunc("GET /api/v1/assets", s.handleListAssets)
	s.mux.HandleFunc("POST /api/v1/assets", s.handleAllocateAsset)
	s.mux.HandleFunc("GET /api/v1/assets/{id}", s.handleGetAsset)
	s.mux.HandleFunc("DELETE /api/v1/assets/{id}", s.handleReleaseAsset)
	s.mux.HandleFunc("POST /api/v1/assets/{id}/migrate", s.handleMigrateAsset)
	s.mux.HandleFunc("POST /api/v1/assets/{id}/reports", s.handleAssetReport)

	// Migrations
	s.mux.HandleFunc("GET /api/v1/migrations", s.handleListMigrations)
	s.mux.HandleFunc("GET /api/v1/migrations/history", s.handleMigrationHistory)
	s.mux.HandleFunc("GET /api/v1/migrations/{asset}", s.handleGetMigration)
	s.mux.HandleFunc("DELETE /api/v1/migrations/{asset}", s.handleCancelMigration)

	// Market
	s.mux.HandleFunc("GET /api/v1/market/offers", s.handleListOffers)
	s.mux.HandleFunc("POST /api/v1/market/offers", s.handleSubmitOffer)
	s.mux.HandleFunc("GET /api/v1/market/requests", s.handleListRequests)
	s.mux.HandleFunc("POST /api/v1/market/requests", s.handleSubmitRequest)
	s.mux.HandleFunc("GET /api/v1/market/agreements", s.handleListAgreements)
	s.mux.HandleFunc("GET /api/v1/market/agreements/{id}", s.handleGetAgreement)
	s.mux.HandleFunc("POST /api/v1/market/agreements/{id}/complete", s.handleCompleteAgreement)
	s.mux.HandleFunc("POST /api/v1/market/agreements/{id}/cancel", s.handleCancelAgreement)
	s.mux.HandleFunc("POST /api/v1/market/agreements/{id}/usage", s.handleRecordUsage)
	s.mux.HandleFunc("GET /api/v1/market/agreements/{id}/usage", s.handleListUsage)

	// Topology
	s.mux.HandleFunc("GET /api/v1/topology", s.handleGetTopology)
	s.mux.HandleFunc("GET /api/v1/topology/partitions", s.handleListPartitions)
	s.mux.HandleFunc("POST /api/v1/topology/links", s.handleRecordLink)

	// Events
	s.mux.HandleFunc("GET /api/v1/events", s.handleListEvents)
	s.mux.HandleFunc("POST /api/v1/events", s.handlePostEvent)

	// Detectors
	s.mux.HandleFunc("POST /api/v1/detect/byzantine", s.handleDetectByzantine)
}

// handleHealthz is a liveness probe.
func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz is a readiness probe.
func (s *Server) handleReadyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleStatus exposes the fleet-wide counters as JSON.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.Metrics())
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// errorStatus maps domain errors to HTTP status codes.
func errorStatus(err error) int {
	var (
		notFound  *model.NotFoundError
		assetMiss *model.AssetNotFoundError
		allocErr  *model.AllocationError
		netErr    *model.NetworkError
	)
	switch {
	case errors.As(err, &notFound), errors.As(err, &assetMiss):
		return http.StatusNotFound
	case errors.As(err, &allocErr):
		return http.StatusConflict
	case errors.As(err, &netErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadRequest
	}
}

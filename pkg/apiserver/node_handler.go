package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// joinRequest is the body of POST /api/v1/nodes.
type joinRequest struct {
	ID           string                 `json:"id"`
	Address      string                 `json:"address"`
	PublicKey    []byte                 `json:"public_key,omitempty"`
	TrustScore   float64                `json:"trust_score"`
	Capabilities model.NodeCapabilities `json:"capabilities"`
}

func (s *Server) handleListNodes(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.Registry().List())
}

func (s *Server) handleJoinNode(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	id, err := ParseNodeKey(req.ID)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id.Address = req.Address
	id.PublicKey = req.PublicKey
	id.TrustScore = req.TrustScore
	if id.TrustScore == 0 {
		id.TrustScore = 1.0
	}
	if err := s.coord.JoinNetwork(id, req.Capabilities); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	info, _ := s.coord.Registry().Get(id)
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	key := r.PathValue("id")
	info, ok := s.coord.Registry().GetByKey(key)
	if !ok {
		s.metrics.IncError()
		writeError(w, http.StatusNotFound, "node "+key+" not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleLeaveNode(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id, err := ParseNodeKey(r.PathValue("id"))
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "voluntary departure"
	}
	if err := s.coord.LeaveNetwork(id, reason); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// heartbeatRequest is the optional body of POST /api/v1/nodes/{id}/heartbeat.
// Agents piggyback their latest metrics and free capacity on the beat.
type heartbeatRequest struct {
	Metrics   *model.PerformanceMetrics `json:"metrics,omitempty"`
	Available *model.AvailableResources `json:"available,omitempty"`
}

func (s *Server) handleNodeHeartbeat(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id, err := ParseNodeKey(r.PathValue("id"))
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req heartbeatRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.metrics.IncError()
			writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
			return
		}
	}

	if req.Metrics != nil {
		err = s.coord.UpdateNodeMetrics(id, *req.Metrics)
	} else {
		err = s.coord.Heartbeat(id)
	}
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if req.Available != nil {
		if err := s.coord.UpdateNodeResources(id, *req.Available); err != nil {
			s.metrics.IncError()
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// reachabilityRequest is the body of POST /api/v1/nodes/{id}/reachability.
type reachabilityRequest struct {
	Peers []string `json:"peers"`
}

func (s *Server) handleNodeReachability(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id, err := ParseNodeKey(r.PathValue("id"))
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req reachabilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	peers := make([]model.NodeID, 0, len(req.Peers))
	for _, p := range req.Peers {
		pid, err := ParseNodeKey(p)
		if err != nil {
			s.metrics.IncError()
			writeError(w, http.StatusBadRequest, "peer "+p+": "+err.Error())
			return
		}
		peers = append(peers, pid)
	}
	s.coord.ReportReachability(id, peers)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

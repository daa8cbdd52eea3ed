package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

func (s *Server) handleGetTopology(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.GetTopology())
}

func (s *Server) handleListPartitions(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	if r.URL.Query().Get("open") == "true" {
		writeJSON(w, http.StatusOK, s.coord.TopologyManager().OpenPartitions())
		return
	}
	writeJSON(w, http.StatusOK, s.coord.TopologyManager().Partitions())
}

// linkRequest is the body of POST /api/v1/topology/links.
type linkRequest struct {
	From          string  `json:"from"`
	To            string  `json:"to"`
	LatencyMs     float64 `json:"latency_ms"`
	BandwidthMbps uint64  `json:"bandwidth_mbps"`
}

func (s *Server) handleRecordLink(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	from, err := ParseNodeKey(req.From)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	to, err := ParseNodeKey(req.To)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "to: "+err.Error())
		return
	}
	s.coord.TopologyManager().RecordLink(from, to, req.LatencyMs, req.BandwidthMbps)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	events, err := s.coord.RecentEvents(limit)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handlePostEvent(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	var evt model.Event
	if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := s.coord.HandleEvent(evt); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleDetectByzantine(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	flagged := s.coord.DetectByzantineNodes()
	keys := make([]string, 0, len(flagged))
	for _, n := range flagged {
		keys = append(keys, n.Key())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"flagged": keys})
}

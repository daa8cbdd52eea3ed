package apiserver

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

func (s *Server) handleListOffers(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.Market().OpenOffers())
}

func (s *Server) handleSubmitOffer(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	var offer model.ResourceOffer
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := ValidateOffer(&offer); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.coord.OfferResources(offer); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "accepted"})
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.Market().OpenRequests())
}

func (s *Server) handleSubmitRequest(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	var req model.ResourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if err := ValidateRequest(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	matched, err := s.coord.RequestResources(req)
	if err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"matched_offers": matched,
	})
}

func (s *Server) handleListAgreements(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	if r.URL.Query().Get("status") == "active" {
		writeJSON(w, http.StatusOK, s.coord.Market().ActiveAgreements())
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Market().Agreements())
}

func (s *Server) handleGetAgreement(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := ValidateID(id); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	a, err := s.coord.Market().GetAgreement(id)
	if err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) handleCompleteAgreement(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := s.coord.Market().CompleteAgreement(id); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

func (s *Server) handleCancelAgreement(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := s.coord.Market().CancelAgreement(id); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// usageRequest is the body of POST /api/v1/market/agreements/{id}/usage.
type usageRequest struct {
	Amount   float64       `json:"amount"`
	Duration time.Duration `json:"duration"`
}

func (s *Server) handleRecordUsage(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	var req usageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	if req.Amount <= 0 || req.Duration <= 0 {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "amount and duration must be positive")
		return
	}
	rec, err := s.coord.Market().RecordUsage(id, req.Amount, req.Duration)
	if err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleListUsage(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	recs, err := s.coord.UsageRecords(id, limit)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

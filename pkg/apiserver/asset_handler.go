package apiserver

import (
	"encoding/json"
	"net/http"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

// allocateRequest is the body of POST /api/v1/assets. ProofValid carries the
// caller's consensus-proof verdict; proof verification itself happens in the
// consensus layer, not here.
type allocateRequest struct {
	ID         string             `json:"id"`
	Type       model.ResourceType `json:"type"`
	ProofValid bool               `json:"proof_valid"`
}

func (s *Server) handleListAssets(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.AssetStates())
}

func (s *Server) handleAllocateAsset(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	asset := model.AssetID{ID: req.ID, Type: req.Type}
	if err := ValidateAssetID(asset); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	decision, err := s.coord.AllocateAsset(asset, req.ProofValid)
	if err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, decision)
}

func (s *Server) handleGetAsset(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := ValidateID(id); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.coord.AssetState(model.AssetID{ID: id})
	if err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleReleaseAsset(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := ValidateID(id); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.coord.ReleaseAsset(model.AssetID{ID: id}); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// migrateRequest is the body of POST /api/v1/assets/{id}/migrate.
type migrateRequest struct {
	Target string `json:"target"`
}

func (s *Server) handleMigrateAsset(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := ValidateID(id); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req migrateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	target, err := ParseNodeKey(req.Target)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, err := s.coord.MigrateAsset(r.Context(), model.AssetID{ID: id}, target)
	if err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// reportRequest is the body of POST /api/v1/assets/{id}/reports.
type reportRequest struct {
	Observer string `json:"observer"`
	State    string `json:"state"`
}

func (s *Server) handleAssetReport(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	id := r.PathValue("id")
	if err := ValidateID(id); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req reportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	observer, err := ParseNodeKey(req.Observer)
	if err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.State == "" {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, "state is required")
		return
	}
	if err := s.coord.SyncAssetState(model.AssetID{ID: id}, observer, req.State); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

package apiserver

import (
	"net/http"

	"github.com/hypermesh-online/meshcoord/pkg/model"
)

func (s *Server) handleListMigrations(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.Migrator().Active())
}

func (s *Server) handleMigrationHistory(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	writeJSON(w, http.StatusOK, s.coord.Migrator().History())
}

func (s *Server) handleGetMigration(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	asset := r.PathValue("asset")
	if err := ValidateID(asset); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	st, ok := s.coord.Migrator().Status(model.AssetID{ID: asset})
	if !ok {
		s.metrics.IncError()
		writeError(w, http.StatusNotFound, "no active migration for asset "+asset)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCancelMigration(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequest()
	asset := r.PathValue("asset")
	if err := ValidateID(asset); err != nil {
		s.metrics.IncError()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.coord.Migrator().CancelMigration(model.AssetID{ID: asset}); err != nil {
		s.metrics.IncError()
		writeError(w, errorStatus(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

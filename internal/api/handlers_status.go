package api

import (
	"net/http"
)

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.scheduler.Stats(r.Context())
	if err != nil {
		writeSchedulerError(w, s.logger, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleConfigReload(w http.ResponseWriter, r *http.Request) {
	if s.reload == nil {
		writeError(w, http.StatusNotImplemented, "unsupported", "configuration reload is not enabled")
		return
	}
	if err := s.reload(); err != nil {
		s.logger.Error("reload config", "err", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to reload configuration")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

package routes

import (
	"fmt"
	"net/http"

	"wsiserve/logger"
)

// MirrorStatusResponse represents the mirror state of one slide
type MirrorStatusResponse struct {
	OutputID string `json:"output_id"`
	State    string `json:"state"`
}

// MirrorStatusHandler returns the mirror state of a slide by output id. Only
// slides handled since the last restart are known.
func (s *Server) MirrorStatusHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Mirror status request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Missing id parameter", http.StatusBadRequest)
		return
	}
	if s.deps.Mirrors == nil {
		http.Error(w, "No mirrors configured", http.StatusNotFound)
		return
	}

	state, exists := s.deps.Mirrors.GetJobState(id)
	if !exists {
		logger.Warnf("Mirror job not found: %s", id)
		http.Error(w, fmt.Sprintf("No mirror job for %s", id), http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, MirrorStatusResponse{OutputID: id, State: state.String()})
}

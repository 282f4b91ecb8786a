package routes

import (
	"net/http"

	"wsiserve/logger"
)

// FailureQueryHandler returns the failures recorded for one output id
func (s *Server) FailureQueryHandler(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	if s.deps.Failures == nil {
		http.Error(w, "Failure ledger disabled", http.StatusNotFound)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	records, err := s.deps.Failures.Get(id)
	if err != nil {
		logger.Errorf("Failed to query failures for %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if len(records) == 0 {
		writeJSON(w, http.StatusOK, map[string]any{
			"output_id": id,
			"status":    "ok",
			"message":   "No failures recorded",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"output_id": id,
		"status":    "failed",
		"failures":  records,
	})
}

// FailureListHandler lists every recorded failure (admin endpoint)
func (s *Server) FailureListHandler(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	if s.deps.Failures == nil {
		http.Error(w, "Failure ledger disabled", http.StatusNotFound)
		return
	}

	list, err := s.deps.Failures.List()
	if err != nil {
		logger.Errorf("Failed to list failures: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"failures": list,
		"count":    len(list),
	})
}

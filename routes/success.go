package routes

import (
	"net/http"

	"wsiserve/logger"
)

// SuccessQueryHandler returns the success record for one output id
func (s *Server) SuccessQueryHandler(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	if s.deps.Successes == nil {
		http.Error(w, "Success ledger disabled", http.StatusNotFound)
		return
	}

	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "id parameter required", http.StatusBadRequest)
		return
	}

	record, err := s.deps.Successes.Get(id)
	if err != nil {
		logger.Errorf("Failed to query success for %s: %v", id, err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "Success record not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, record)
}

// SuccessListHandler lists every success record (admin endpoint)
func (s *Server) SuccessListHandler(w http.ResponseWriter, r *http.Request) {
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}
	if s.deps.Successes == nil {
		http.Error(w, "Success ledger disabled", http.StatusNotFound)
		return
	}

	list, err := s.deps.Successes.List()
	if err != nil {
		logger.Errorf("Failed to list successes: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"successes": list,
		"count":     len(list),
	})
}

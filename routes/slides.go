package routes

import (
	"net/http"
	"strings"

	"wsiserve/logger"
	"wsiserve/models"
)

type SlidesResponse struct {
	Slides []models.PublishedSlide `json:"slides"`
}

// SlidesHandler lists the published manifests with absolute URLs.
func (s *Server) SlidesHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Slides request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}

	slides, err := s.deps.Catalog.ListWithBase(s.baseURL(r))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, SlidesResponse{Slides: slides})
}

// StaticHandler serves manifests and tiles under the serve root. Directory
// listings are not exposed.
func (s *Server) StaticHandler() http.Handler {
	files := http.StripPrefix(s.serveRoot, http.FileServer(http.Dir(s.slidesDir)))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		files.ServeHTTP(w, r)
	})
}

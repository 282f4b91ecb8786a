// Package routes exposes the HTTP API. Handlers are methods on Server so
// every dependency is injected at startup.
package routes

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/cors"

	"wsiserve/config"
	"wsiserve/failures"
	"wsiserve/job"
	"wsiserve/logger"
	"wsiserve/models"
	"wsiserve/success"
)

type Uploader interface {
	HandleUpload(ctx context.Context, r io.Reader, declaredFilename string) (*models.UploadResult, error)
}

type SlideLister interface {
	ListWithBase(baseURL string) ([]models.PublishedSlide, error)
}

type SuccessLedger interface {
	Get(outputID string) (*success.SuccessRecord, error)
	List() ([]success.SuccessRecord, error)
	CheckHealth() error
}

type FailureLedger interface {
	Get(outputID string) ([]failures.FailureRecord, error)
	List() ([]failures.FailureRecord, error)
	CheckHealth() error
}

type MirrorStatus interface {
	GetJobState(outputID string) (job.JobState, bool)
}

// Deps are the collaborators behind the handlers. Successes, Failures and
// Mirrors may be nil.
type Deps struct {
	Pipeline  Uploader
	Catalog   SlideLister
	Successes SuccessLedger
	Failures  FailureLedger
	Mirrors   MirrorStatus
}

type Server struct {
	deps           Deps
	slidesDir      string
	serveRoot      string
	publicBaseURL  string
	trustProxy     bool
	corsOrigins    []string
	maxUploadBytes int64
	startTime      time.Time
}

func NewServer(cfg *config.Config, deps Deps) *Server {
	return &Server{
		deps:           deps,
		slidesDir:      cfg.Slides.Dir,
		serveRoot:      strings.TrimRight(cfg.Slides.ServeRoot, "/"),
		publicBaseURL:  strings.TrimRight(cfg.Server.PublicBaseURL, "/"),
		trustProxy:     cfg.Server.TrustProxyHeaders,
		corsOrigins:    cfg.Server.CORSAllowedOrigins,
		maxUploadBytes: cfg.Staging.MaxUploadBytes,
		startTime:      time.Now(),
	}
}

// Routes registers every endpoint on a new mux, wrapped in CORS handling
// when any origins are allowed.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HealthHandler)
	mux.HandleFunc("/version", s.VersionHandler)
	mux.HandleFunc("/upload", s.UploadHandler)
	mux.HandleFunc("/slides", s.SlidesHandler)
	mux.Handle(s.serveRoot+"/", s.StaticHandler())
	mux.HandleFunc("/status", s.MirrorStatusHandler)
	mux.HandleFunc("/failures", s.FailureQueryHandler)
	mux.HandleFunc("/failures/list", s.FailureListHandler)
	mux.HandleFunc("/success", s.SuccessQueryHandler)
	mux.HandleFunc("/success/list", s.SuccessListHandler)

	if len(s.corsOrigins) == 0 {
		return mux
	}
	// preflights are answered here, before any handler checks the method
	return cors.New(cors.Options{
		AllowedOrigins: s.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost},
		AllowedHeaders: []string{"Content-Type", "X-Requested-With", "Range"},
		MaxAge:         600,
	}).Handler(mux)
}

// baseURL is scheme://host for links handed back to clients.
func (s *Server) baseURL(r *http.Request) string {
	if s.publicBaseURL != "" {
		return s.publicBaseURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if s.trustProxy {
		if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
			scheme = proto
		}
	}
	return scheme + "://" + r.Host
}

// ErrorResponse is the body of every JSON error.
type ErrorResponse struct {
	Error      string `json:"error"`
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

var errorTitles = map[models.ErrorKind]string{
	models.KindUnsupportedFormat:  "Unsupported file type",
	models.KindPayloadTooLarge:    "File too large",
	models.KindNoFileProvided:     "No file uploaded",
	models.KindConversionFailed:   "Failed to process file",
	models.KindCatalogUnavailable: "Failed to list slides",
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Errorf("Failed to encode response: %v", err)
	}
}

// writeError maps err to a status and JSON body. Errors without a kind are
// reported as Internal and their text is not sent to the client.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := ErrorResponse{
		Error:   "Internal server error",
		Kind:    string(models.KindInternal),
		Message: "internal server error",
	}

	var e *models.Error
	if errors.As(err, &e) {
		status = e.Status()
		resp.Kind = string(e.Kind)
		resp.Message = e.Message
		resp.Diagnostic = e.Diagnostic
		if title, ok := errorTitles[e.Kind]; ok {
			resp.Error = title
		}
	}

	if status >= http.StatusInternalServerError {
		logger.Errorf("Request failed: %v", err)
	} else {
		logger.Warnf("Request rejected: %v", err)
	}
	writeJSON(w, status, resp)
}

// methodNotAllowed answers any method other than allowed and reports
// whether it did. A bare OPTIONS gets 204 with the Allow header.
func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) bool {
	if r.Method == allowed {
		return false
	}
	if r.Method == http.MethodOptions {
		w.Header().Set("Allow", allowed+", "+http.MethodOptions)
		w.WriteHeader(http.StatusNoContent)
		return true
	}
	logger.Warnf("Invalid method for %s: %s", r.URL.Path, r.Method)
	w.Header().Set("Allow", allowed)
	http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	return true
}

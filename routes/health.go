package routes

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"wsiserve/logger"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	GoVersion string    `json:"go_version"`
	Uptime    string    `json:"uptime"`
	StartTime string    `json:"start_time"`
}

// formatUptime formats a duration into days, hours, minutes, seconds
func formatUptime(d time.Duration) string {
	days := int(d.Hours() / 24)
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
}

// HealthHandler reports liveness for load balancers. A ledger that stops
// answering turns the response into a 503.
func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	logger.Debugf("Health check request: method=%s, remoteAddr=%s", r.Method, r.RemoteAddr)
	if methodNotAllowed(w, r, http.MethodGet) {
		return
	}

	response := HealthResponse{
		Status:    "ok",
		Message:   "wsiserve is running",
		Timestamp: time.Now(),
		Version:   version,
		GoVersion: runtime.Version(),
		Uptime:    formatUptime(time.Since(s.startTime)),
		StartTime: s.startTime.Format("2006-01-02 15:04:05 MST"),
	}
	status := http.StatusOK

	if err := s.checkLedgers(); err != nil {
		logger.Errorf("Health check failed: %v", err)
		response.Status = "unhealthy"
		response.Message = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, response)
}

func (s *Server) checkLedgers() error {
	if s.deps.Successes != nil {
		if err := s.deps.Successes.CheckHealth(); err != nil {
			return err
		}
	}
	if s.deps.Failures != nil {
		if err := s.deps.Failures.CheckHealth(); err != nil {
			return err
		}
	}
	return nil
}

package server

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/conneroisu/trattoria/internal/version"
)

// HealthResponse is the body of /health.
type HealthResponse struct {
	Status      string            `json:"status"`
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`
	LiveClients int               `json:"liveClients"`
	Checks      map[string]string `json:"checks,omitempty"`
}

// handleHealth runs every registered check with a short deadline. Any
// failing check turns the response into 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{
		Status:  "ok",
		Version: version.GetVersion(),
		Uptime:  time.Since(s.started).Round(time.Second).String(),
	}
	if s.live != nil {
		resp.LiveClients = s.live.ConnectedClients()
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	if len(names) > 0 || s.live != nil {
		resp.Checks = make(map[string]string, len(names)+1)
	}
	if s.live != nil {
		if s.live.IsShutdown() {
			resp.Checks["live"] = "shut down"
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		} else {
			resp.Checks["live"] = "ok"
		}
	}
	for _, name := range names {
		if err := s.checks[name](ctx); err != nil {
			resp.Checks[name] = err.Error()
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
			s.logger.Warn(ctx, err, "Health check failed", "check", name)
			continue
		}
		resp.Checks[name] = "ok"
	}

	writeJSON(w, status, resp)
}

package api

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/nerrad567/litemodel/internal/pool"
)

// healthCheckTimeout bounds each component check.
const healthCheckTimeout = 5 * time.Second

// Health status values.
const (
	statusOK       = "ok"
	statusDegraded = "degraded"
)

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Components    map[string]string `json:"components"`
}

// PoolResponse is the body of GET /pool.
type PoolResponse struct {
	pool.Stats
	WaitDurationMS int64 `json:"wait_duration_ms"`
}

// handleHealth checks every registered component. Any failure answers 503.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:        statusOK,
		Version:       s.version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Components:    make(map[string]string, len(s.checks)),
	}

	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		err := s.checks[name].HealthCheck(ctx)
		cancel()

		if err != nil {
			resp.Status = statusDegraded
			resp.Components[name] = err.Error()
			s.logger.Warn("health check failed", "component", name, "error", err)
			continue
		}
		resp.Components[name] = statusOK
	}

	status := http.StatusOK
	if resp.Status != statusOK {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

// handlePoolStats returns the current pool snapshot.
func (s *Server) handlePoolStats(w http.ResponseWriter, _ *http.Request) {
	stats := s.pool.Stats()
	writeJSON(w, http.StatusOK, PoolResponse{
		Stats:          stats,
		WaitDurationMS: stats.WaitDuration.Milliseconds(),
	})
}

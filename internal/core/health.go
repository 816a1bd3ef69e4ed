package core

import (
	"context"
	"net/http"
	"time"
)

// healthCheckTimeout is the ceiling for all health probes combined.
const healthCheckTimeout = 2 * time.Second

// HealthProbe is a subsystem health check. Each probe represents a
// dependency that must be reachable for the service to function.
type HealthProbe interface {
	Name() string
	Check(ctx context.Context) error
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

// HandleHealth runs all registered probes sequentially under a shared
// deadline. Returns 200 when every probe passes, 503 otherwise. Mounted at
// GET /health with no authentication.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy"}
	if s.Config != nil {
		resp.Version = s.Config.Build.Version
	}

	if len(s.HealthProbes) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthProbes))
	healthy := true

	for _, probe := range s.HealthProbes {
		if err := probe.Check(ctx); err != nil {
			healthy = false
			resp.Components[probe.Name()] = componentStatus{Status: "unhealthy", Message: err.Error()}
			continue
		}
		resp.Components[probe.Name()] = componentStatus{Status: "healthy"}
	}

	if !healthy {
		resp.Status = "unhealthy"
		JSON(w, r, http.StatusServiceUnavailable, resp)
		return
	}
	JSON(w, r, http.StatusOK, resp)
}

// DBProbe adapts a pingable connection pool into a HealthProbe.
type DBProbe struct {
	Pinger interface {
		Ping(ctx context.Context) error
	}
}

func (DBProbe) Name() string { return "database" }

func (p DBProbe) Check(ctx context.Context) error {
	return p.Pinger.Ping(ctx)
}

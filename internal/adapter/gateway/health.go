package gateway

import (
	"context"
	"net/http"
	"time"
)

const healthProbeTimeout = 2 * time.Second

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status          string `json:"status"`
	Provider        string `json:"provider"`
	ProviderHealthy bool   `json:"providerHealthy"`
	Tools           int    `json:"tools"`
	Sessions        int    `json:"sessions"`
	UptimeSeconds   int64  `json:"uptimeSeconds"`
}

// healthHandler reports process liveness. An unreachable provider degrades
// the status but still answers 200 so the process is not restarted for it.
func healthHandler(deps HandlerDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		healthy := true
		if deps.ProviderHealthy != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
			healthy = deps.ProviderHealthy(ctx)
			cancel()
		}

		resp := HealthResponse{
			Status:          "ok",
			Provider:        deps.ProviderName,
			ProviderHealthy: healthy,
			UptimeSeconds:   int64(time.Since(startTime).Seconds()),
		}
		if !healthy {
			resp.Status = "degraded"
		}
		if deps.Tools != nil {
			resp.Tools = deps.Tools.Len()
		}
		if deps.Sessions != nil {
			resp.Sessions = deps.Sessions.Len()
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

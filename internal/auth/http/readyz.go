package http

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/gatehouse/pkg/authsdk"
	"github.com/aussiebroadwan/gatehouse/pkg/httpx"
)

// Pinger is a dependency the service cannot run without.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyzHandler godoc
//
//	@Summary		Readiness Check Endpoint
//	@Description	Readiness probe endpoint reporting the status of the database and the cache
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse	"status and per-dependency checks"
//	@Failure		503	{object}	authsdk.HealthResponse	"service not ready"
//	@Router			/readyz [get].
func ReadyzHandler(deps map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details := make(map[string]string, len(deps))
		status, code := "ok", http.StatusOK

		for name, p := range deps {
			if err := p.Ping(r.Context()); err != nil {
				details[name] = "error: " + err.Error()
				status, code = "degraded", http.StatusServiceUnavailable
				continue
			}
			details[name] = "ok"
		}

		httpx.WriteJSON(w, code, authsdk.HealthResponse{Status: status, Details: details})
	}
}

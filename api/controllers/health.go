package controllers

import (
	"net/http"

	"github.com/novamart/orderflow/api/responses"
	"github.com/novamart/orderflow/pkg/config"
	"github.com/novamart/orderflow/pkg/db"
	"github.com/novamart/orderflow/pkg/logger"
	"github.com/novamart/orderflow/pkg/redis"
)

func HealthLive(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OrderFlow-Env", cfg.App.Env)
		responses.WriteSuccess(w, map[string]string{"status": "live"})
	}
}

// HealthReady checks the dependencies the request path cannot live without.
// Redis degradation is reported but does not fail readiness; checkout progress
// and idempotency replay degrade gracefully without it.
func HealthReady(cfg *config.Config, logg *logger.Logger, dbP db.Pinger, redisP redis.Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-OrderFlow-Env", cfg.App.Env)

		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}
		ready := true

		if err := dbP.Ping(r.Context()); err != nil {
			logg.Error(r.Context(), "health.database", err)
			checks["database"] = "unavailable"
			ready = false
		}
		if err := redisP.Ping(r.Context()); err != nil {
			logg.Warn(r.Context(), "health.redis degraded")
			checks["redis"] = "unavailable"
		}

		if !ready {
			responses.WriteSuccessStatus(w, http.StatusServiceUnavailable, map[string]any{
				"status": "not_ready",
				"checks": checks,
			})
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"status": "ready",
			"checks": checks,
		})
	}
}

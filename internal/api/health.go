package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/prmjagdish/schedula/internal/db"
)

// dependencyCheck is one readiness probe. A failing critical dependency
// makes the service unready; a failing optional one only degrades it.
type dependencyCheck struct {
	name     string
	critical bool
	ping     func(ctx context.Context) error
}

type HealthHandler struct {
	checks    []dependencyCheck
	poolStats func() db.PoolStats
	env       string
	version   string
}

// NewHealthHandler probes Postgres and, when rdb is non-nil, Redis.
func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	h := &HealthHandler{
		env:     env,
		version: version,
		checks: []dependencyCheck{{
			name:     "postgres",
			critical: true,
			ping:     pgPool.Ping,
		}},
		poolStats: func() db.PoolStats { return db.GetPoolStats(pgPool) },
	}
	if rdb != nil {
		h.checks = append(h.checks, dependencyCheck{
			name: "redis",
			ping: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
	}
	return h
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
	Pool         *db.PoolStats     `json:"pool,omitempty"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string, len(h.checks))
	status := "ok"

	for _, check := range h.checks {
		checkCtx, checkCancel := context.WithTimeout(ctx, time.Second)
		err := check.ping(checkCtx)
		checkCancel()

		if err == nil {
			deps[check.name] = "ok"
			continue
		}
		deps[check.name] = "down"
		switch {
		case check.critical:
			status = "error"
		case status == "ok":
			status = "degraded"
		}
	}

	resp := ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	}
	if h.poolStats != nil {
		stats := h.poolStats()
		resp.Pool = &stats
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}
	writeJSON(w, httpStatus, resp)
}

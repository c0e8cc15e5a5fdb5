package httpapi

import (
	"context"
	"net/http"
	"time"

	"outreach_gateway/internal/logging"
	"outreach_gateway/internal/storage"
	"outreach_gateway/internal/utils"
)

const healthTimeout = 2 * time.Second

// handleHealth handles GET /health. Redis being down only degrades the
// service; the database being down fails the check.
func (d *Dependencies) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	code := http.StatusOK
	checks := map[string]string{}

	if d.Database != nil {
		if err := d.Database.Health(ctx); err != nil {
			logging.Errorf("health: database: %v", err)
			checks["database"] = "down"
			status = "down"
			code = http.StatusServiceUnavailable
		} else {
			checks["database"] = "ok"
		}
	}

	if d.Redis != nil {
		if err := d.Redis.Health(ctx); err != nil {
			logging.Warningf("health: redis: %v", err)
			checks["redis"] = "degraded"
			if status == "ok" {
				status = "degraded"
			}
		} else {
			checks["redis"] = "ok"
		}
	}

	pools := map[string]any{}
	if s, ok := d.Database.(interface{ GetStats() storage.DBStats }); ok {
		pools["database"] = s.GetStats()
	}
	if s, ok := d.Redis.(interface{ GetStats() storage.RedisStats }); ok {
		pools["redis"] = s.GetStats()
	}

	body := map[string]any{
		"status": status,
		"checks": checks,
		"pools":  pools,
	}
	if q, ok := d.Audit.(interface {
		Size(ctx context.Context) (int64, error)
	}); ok {
		if n, err := q.Size(ctx); err == nil {
			body["audit_queue"] = n
		}
	}

	utils.RespondWithJSON(w, code, body)
}

package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

type IHealthHandler interface {
	Healthz(ctx *gin.Context)
}

type HealthHandler struct {
	checks map[string]HealthCheck
}

func NewHealthHandler(checks map[string]HealthCheck) IHealthHandler {
	return &HealthHandler{checks: checks}
}

// Healthz reports ok when every registered dependency answers.
func (h *HealthHandler) Healthz(ctx *gin.Context) {
	c, cancel := context.WithTimeout(ctx.Request.Context(), 2*time.Second)
	defer cancel()

	results := gin.H{}
	healthy := true
	for name, check := range h.checks {
		if err := check(c); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	if !healthy {
		ctx.JSON(http.StatusServiceUnavailable, gin.H{"ok": false, "status": "degraded", "checks": results})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"ok": true, "status": "ok", "checks": results})
}

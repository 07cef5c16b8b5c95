package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"go.uber.org/zap"

	"CareFollow/internal/model/dto"
	"CareFollow/pkg/response"
)

const healthTimeout = 2 * time.Second

// Healthz 探测各依赖，任一不可用返回 503
// GET /healthz
func (h *Handler) Healthz(ctx context.Context, c *app.RequestContext) {
	checkCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()

	data := dto.HealthData{Status: "ok", Components: make(map[string]string, len(h.checks))}
	for name, check := range h.checks {
		if err := check(checkCtx); err != nil {
			h.logger.Warn("Health check failed", zap.String("component", name), zap.Error(err))
			data.Status = "degraded"
			data.Components[name] = "unavailable"
			continue
		}
		data.Components[name] = "ok"
	}

	if data.Status != "ok" {
		c.JSON(http.StatusServiceUnavailable, response.SuccessResponse{Data: data})
		return
	}
	response.Success(ctx, c, data)
}

package router

import (
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/route"

	"CareFollow/internal/handler"
)

// Middlewares 为 nil 的项不注册
type Middlewares struct {
	Recover   app.HandlerFunc
	Tracing   app.HandlerFunc
	Metrics   app.HandlerFunc
	Auth      app.HandlerFunc
	RateLimit app.HandlerFunc
}

func Register(r *route.Engine, h *handler.Handler, mw Middlewares) {
	r.Use(compact(mw.Recover, mw.Tracing, mw.Metrics)...)

	r.GET("/healthz", h.Healthz)

	// 鉴权在限流之前，限流按调用方服务名计数
	v1 := r.Group("/v1", compact(mw.Auth, mw.RateLimit)...)
	{
		v1.POST("/discharges", h.CreateDischarge)
		v1.POST("/messages", h.CreatePatientMessage)
		v1.GET("/patients/:patient_id/follow-up", h.GetFollowUp)
	}
}

func compact(handlers ...app.HandlerFunc) []app.HandlerFunc {
	out := make([]app.HandlerFunc, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			out = append(out, h)
		}
	}
	return out
}

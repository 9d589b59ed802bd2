package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"ipv6-provision-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(handler *Handler) *gin.Engine {
	cfg := handler.cfg

	r := gin.New()
	r.Use(gin.Recovery(), mw.RequestLogger())

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	// Listings are cached briefly; any successful write flushes them.
	responses := mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second)
	caching := responses.Cache()

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Provider callbacks. Non-POST methods are routed so they get the refusal
	// body instead of a 404.
	callbacks := r.Group("")
	callbacks.Use(rateLimiter, responses.Invalidate())
	{
		callbacks.Any(cfg.Callbacks.BindingPath, handler.BindingCallback)
		callbacks.Any(cfg.Callbacks.OfflinePath, handler.OfflineCallback)
		callbacks.Any(cfg.Callbacks.ConfigPath, handler.ConfigCallback)
		callbacks.Match([]string{http.MethodGet, http.MethodPost}, "/api/kea/test/", handler.CallbackProbe)
	}

	api := r.Group("/api")
	api.Use(rateLimiter, responses.Invalidate())
	{
		api.GET("/bindings", caching, handler.ListBindings)
		api.GET("/bindings/:id", handler.GetBinding)
		api.POST("/bindings/retry", handler.RetryBindings)
		api.POST("/bindings/:id/send", handler.SendBinding)
		api.DELETE("/bindings/:id", handler.DeleteBinding)

		api.GET("/approvals", caching, handler.ListApprovals)
		api.POST("/approvals", handler.SubmitApproval)
		api.POST("/approvals/:id/approve", handler.Approve)
		api.POST("/approvals/:id/reject", handler.Reject)

		api.GET("/devices", caching, handler.ListDevices)
		api.POST("/devices/:id/offline", handler.OfflineDevice)

		api.GET("/configs", caching, handler.ListConfigs)
		api.POST("/configs", handler.CreateConfig)
		api.PUT("/configs/:id", handler.UpdateConfig)
		api.POST("/configs/:id/send", handler.SendConfig)

		api.GET("/departments", caching, handler.ListDepartments)
		api.PUT("/departments/:id", handler.PutDepartment)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}

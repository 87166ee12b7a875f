package routes

import (
	"cloudrams/internal/controllers"
	"cloudrams/internal/logging"
	"cloudrams/internal/middleware"

	"github.com/gin-gonic/gin"
)

// RouterOptions configures the HTTP surface
type RouterOptions struct {
	AllowedOrigins []string
	AllowedIPs     []string
}

// NewRouter builds the agent's gin engine. Everything except /health
// requires credentials when auth is enabled.
func NewRouter(opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(
		gin.Recovery(),
		logging.GinLogger(),
		middleware.SecurityHeadersMiddleware(),
		middleware.CORSMiddleware(opts.AllowedOrigins),
		middleware.LoopbackOnlyMiddleware(middleware.NewIPAllowList(opts.AllowedIPs)),
		middleware.RateLimitMiddleware(middleware.NewRateLimiter()),
	)

	r.GET("/health", controllers.Health)

	failures := middleware.NewAuthFailureLimiter()
	api := r.Group("/", middleware.RequireToken(failures, false))
	ws := r.Group("/", middleware.RequireToken(failures, true))

	RegisterProcessRoutes(api)
	RegisterAgentRoutes(api)
	RegisterAuthRoutes(ws, api)

	return r
}

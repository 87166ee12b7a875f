package routes

import (
	"cloudrams/internal/controllers"

	"github.com/gin-gonic/gin"
)

// RegisterAuthRoutes registers the event stream and token introspection.
// Token generation must be done via CLI (no HTTP endpoints).
func RegisterAuthRoutes(ws, api *gin.RouterGroup) {
	ws.GET("/ws", controllers.HandleWebSocket)
	api.GET("/token_status", controllers.HandleTokenStatus)
}

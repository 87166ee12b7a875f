package routes

import (
	"cloudrams/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterProcessRoutes(r *gin.RouterGroup) {
	r.GET("/running_tasks", controllers.GetRunningTasks)

	processes := r.Group("/processes")
	{
		processes.GET("/", controllers.GetTopProcesses)
		processes.GET("/status", controllers.GetProcessStatus)
	}
}

package routes

import (
	"cloudrams/internal/controllers"

	"github.com/gin-gonic/gin"
)

func RegisterAgentRoutes(r *gin.RouterGroup) {
	r.GET("/system", controllers.GetSystem)

	r.POST("/zip_folder", controllers.ZipFolder)
	r.POST("/upload_to_url", controllers.UploadToURL)
	r.POST("/download_from_url", controllers.DownloadFromURL)

	r.POST("/install_autorun", controllers.InstallAutorun)
	r.POST("/uninstall_autorun", controllers.UninstallAutorun)
	r.POST("/run_autorun_now", controllers.RunAutorunNow)
	r.GET("/autorun_status", controllers.AutorunStatus)
}

package controllers

import (
	"io"
	"net/http"

	"cloudrams/internal/models"
	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

// Autorun handlers always answer 200; the TaskResult's ok field carries the outcome.

func InstallAutorun(c *gin.Context) {
	var req models.InstallAutorunRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		respondBindError(c, err)
		return
	}

	svc, ok := autorun(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, svc.Install(c.Request.Context(), req.ExePath, req.Args))
}

func UninstallAutorun(c *gin.Context) {
	if svc, ok := autorun(c); ok {
		c.JSON(http.StatusOK, svc.Uninstall(c.Request.Context()))
	}
}

func RunAutorunNow(c *gin.Context) {
	if svc, ok := autorun(c); ok {
		c.JSON(http.StatusOK, svc.RunNow(c.Request.Context()))
	}
}

func AutorunStatus(c *gin.Context) {
	if svc, ok := autorun(c); ok {
		c.JSON(http.StatusOK, svc.Status(c.Request.Context()))
	}
}

func autorun(c *gin.Context) (*services.AutorunService, bool) {
	svc := services.GetAutorunService()
	if svc == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "autorun service not initialized"})
		return nil, false
	}
	return svc, true
}

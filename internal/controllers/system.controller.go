package controllers

import (
	"net/http"

	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
)

func Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"service": serviceName,
		"version": settings.Version,
	})
}

func GetSystem(c *gin.Context) {
	status, err := services.GetHostStatus(settings.DataDir, settings.Version)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

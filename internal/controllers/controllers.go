package controllers

import (
	"net/http"

	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
)

const serviceName = "cloudrams-local-agent"

// Settings the handlers need beyond the services
type Settings struct {
	Version        string
	DataDir        string
	AllowedOrigins []string
}

var settings Settings

// Configure sets what the handlers report and enforce
func Configure(s Settings) {
	settings = s
}

// respondError writes a service error with its mapped status
func respondError(c *gin.Context, err error) {
	c.JSON(services.StatusFor(err), gin.H{"error": err.Error()})
}

// respondBindError rejects malformed request bodies
func respondBindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
}

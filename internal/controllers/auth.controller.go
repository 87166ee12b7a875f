package controllers

import (
	"net/http"

	"cloudrams/internal/middleware"
	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
)

// HandleTokenStatus reports the claims of the bearer JWT on the request
func HandleTokenStatus(c *gin.Context) {
	_, token := middleware.Credentials(c, false)
	if token == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bearer token required in Authorization header"})
		return
	}

	claims, err := services.ValidateToken(token)
	if err != nil {
		middleware.GlobalSecurityLogger.LogFailedAuth(c.ClientIP(), "invalid token: "+err.Error())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":       true,
		"client_name": claims.ClientName,
		"expires_at":  claims.ExpiresAt.Time,
		"issued_at":   claims.IssuedAt.Time,
	})
}

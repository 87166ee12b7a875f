package middleware

import (
	"net/http"
	"strings"

	"cloudrams/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	AgentTokenHeader = "X-Agent-Token"
	unauthorizedMsg  = "Unauthorized (bad agent token)"
)

// RequireToken rejects requests without a valid agent token or bearer JWT.
// When allowQuery is set a ?token= parameter is accepted too, since browsers
// cannot set headers on websocket upgrades. failures may be nil.
func RequireToken(failures *RateLimiter, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !services.AuthRequired() {
			c.Next()
			return
		}

		ip := c.ClientIP()
		if failures != nil && failures.GetLimiter(ip).Tokens() < 1 {
			GlobalSecurityLogger.LogRateLimited(ip, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "too many failed authentication attempts",
				"retry_after": 60,
			})
			return
		}

		agentToken, bearer := Credentials(c, allowQuery)
		if err := services.Authorize(agentToken, bearer); err != nil {
			if failures != nil {
				failures.GetLimiter(ip).Allow()
			}
			GlobalSecurityLogger.LogFailedAuth(ip, err.Error())
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": unauthorizedMsg})
			return
		}

		c.Next()
	}
}

// Credentials extracts the agent token and bearer JWT from a request
func Credentials(c *gin.Context, allowQuery bool) (agentToken, bearer string) {
	agentToken = c.GetHeader(AgentTokenHeader)
	if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		bearer = strings.TrimSpace(auth[7:])
	}
	if allowQuery && agentToken == "" && bearer == "" {
		if q := c.Query("token"); q != "" {
			agentToken = q
			if strings.Count(q, ".") == 2 {
				bearer = q
			}
		}
	}
	return agentToken, bearer
}

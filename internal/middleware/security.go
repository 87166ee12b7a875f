package middleware

import (
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Package-level security logger instance
var GlobalSecurityLogger = NewSecurityLogger()

// RateLimiter implements token bucket rate limiting per IP
type RateLimiter struct {
	limiters map[string]*rate.Limiter
	mu       sync.Mutex
	limit    rate.Limit
	burst    int
}

// NewRateLimiter creates a rate limiter allowing 100 requests per second per IP, burst of 200
func NewRateLimiter() *RateLimiter {
	return newRateLimiter(rate.Limit(100), 200)
}

// NewAuthFailureLimiter allows 5 failed authentications per minute per IP, burst of 10
func NewAuthFailureLimiter() *RateLimiter {
	return newRateLimiter(rate.Every(12*time.Second), 10)
}

func newRateLimiter(limit rate.Limit, burst int) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

// GetLimiter gets or creates a limiter for an IP address
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if limiter, exists := rl.limiters[ip]; exists {
		return limiter
	}

	limiter := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = limiter
	return limiter
}

// RateLimitMiddleware enforces rate limiting per IP
func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !limiter.GetLimiter(ip).Allow() {
			GlobalSecurityLogger.LogRateLimited(ip, c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 60,
			})
			return
		}
		c.Next()
	}
}

// SecurityHeadersMiddleware adds security headers to all responses
func SecurityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		c.Header("Referrer-Policy", "no-referrer")
		c.Header("Cache-Control", "no-store")
		c.Next()
	}
}

// OriginAllowed reports whether a browser origin may talk to the agent.
// Entries without a scheme match on host[:port]; "*" matches everything.
// An empty list allows any non-empty origin.
func OriginAllowed(origin string, allowedOrigins []string) bool {
	normalizedOrigin := strings.TrimRight(origin, "/")
	if normalizedOrigin == "" {
		return false
	}
	if len(allowedOrigins) == 0 {
		return true
	}

	for _, o := range allowedOrigins {
		trimmed := strings.TrimRight(strings.TrimSpace(o), "/")
		if trimmed == "" {
			continue
		}
		if trimmed == "*" || strings.EqualFold(normalizedOrigin, trimmed) {
			return true
		}
		if !strings.Contains(trimmed, "://") {
			if parsed, err := url.Parse(normalizedOrigin); err == nil && strings.EqualFold(parsed.Host, trimmed) {
				return true
			}
		}
	}
	return false
}

// CORSMiddleware echoes allowed origins and answers preflights
func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := strings.TrimRight(c.GetHeader("Origin"), "/")

		if OriginAllowed(origin, allowedOrigins) {
			c.Header("Vary", "Origin")
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Agent-Token")
			c.Header("Access-Control-Max-Age", "86400")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// IPAllowList admits loopback clients plus any explicitly listed address
type IPAllowList struct {
	ips map[string]bool
	mu  sync.RWMutex
}

// NewIPAllowList creates a new allow list
func NewIPAllowList(ips []string) *IPAllowList {
	al := &IPAllowList{
		ips: make(map[string]bool),
	}
	for _, ip := range ips {
		if parsed := net.ParseIP(strings.TrimSpace(ip)); parsed != nil {
			al.ips[parsed.String()] = true
		}
	}
	return al
}

// IsAllowed checks if an IP may reach the agent
func (al *IPAllowList) IsAllowed(ip string) bool {
	// Strip port from IP if present
	if host, _, err := net.SplitHostPort(ip); err == nil {
		ip = host
	}
	if ip == "localhost" {
		return true
	}

	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if parsed.IsLoopback() {
		return true
	}

	al.mu.RLock()
	defer al.mu.RUnlock()
	return al.ips[parsed.String()]
}

// LoopbackOnlyMiddleware rejects clients that are neither loopback nor allow-listed
func LoopbackOnlyMiddleware(allowList *IPAllowList) gin.HandlerFunc {
	return func(c *gin.Context) {
		ip := c.ClientIP()
		if !allowList.IsAllowed(ip) {
			GlobalSecurityLogger.LogAccessDenied(ip)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "access denied"})
			return
		}
		c.Next()
	}
}

// SecurityLogger logs security events
type SecurityLogger struct {
	entry *logrus.Entry
}

// NewSecurityLogger creates a new security logger
func NewSecurityLogger() *SecurityLogger {
	return &SecurityLogger{entry: logrus.WithField("component", "security")}
}

// LogFailedAuth logs failed authentication attempts
func (sl *SecurityLogger) LogFailedAuth(ip string, reason string) {
	sl.entry.WithField("ip", ip).Warnf("Failed authentication: %s", reason)
}

// LogAccessDenied logs requests from addresses outside the allow list
func (sl *SecurityLogger) LogAccessDenied(ip string) {
	sl.entry.WithField("ip", ip).Warn("Access denied for non-loopback IP")
}

// LogRateLimited logs throttled requests
func (sl *SecurityLogger) LogRateLimited(ip string, path string) {
	sl.entry.WithFields(logrus.Fields{"ip": ip, "path": path}).Warn("Rate limit exceeded")
}

// LogTokenGenerated logs successful token generation
func (sl *SecurityLogger) LogTokenGenerated(clientName string) {
	sl.entry.Infof("Token generated for client %s", clientName)
}

// LogWebSocketConnected logs successful WebSocket connections
func (sl *SecurityLogger) LogWebSocketConnected(ip string, clientID string) {
	sl.entry.WithField("ip", ip).Infof("WebSocket connected: %s", clientID)
}

// LogWebSocketDisconnected logs WebSocket disconnections
func (sl *SecurityLogger) LogWebSocketDisconnected(ip string, clientID string) {
	sl.entry.WithField("ip", ip).Infof("WebSocket disconnected: %s", clientID)
}

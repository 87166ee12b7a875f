package services

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	tokenIssuer        = "cloudrams-agent"
	defaultTokenExpiry = 90 * 24 * time.Hour
	minSecretKeyLength = 32
)

// AuthConfig selects which credentials the agent accepts
type AuthConfig struct {
	// StaticToken is compared against the X-Agent-Token header. Empty disables it.
	StaticToken string
	// JWTEnabled turns on Bearer token checks even without a static token.
	JWTEnabled bool
	// SecretKey signs JWTs. Empty means load or generate SecretKeyFile.
	SecretKey     string
	SecretKeyFile string
	TokenExpiry   time.Duration
}

// AuthService manages agent token checks and JWT generation/validation
type AuthService struct {
	secretKey   string
	staticToken string
	jwtEnabled  bool
	tokenExpiry time.Duration
}

// CustomClaims represents the JWT claims structure
type CustomClaims struct {
	ClientName string `json:"client_name"`
	jwt.RegisteredClaims
}

var authService *AuthService

// InitAuthService initializes the authentication service
func InitAuthService(cfg AuthConfig) *AuthService {
	secretKey := strings.TrimSpace(cfg.SecretKey)
	if secretKey == "" && cfg.SecretKeyFile != "" {
		secretKey = loadOrCreateSecretKey(cfg.SecretKeyFile)
	}

	// Ensure secret key is at least 32 bytes for HMAC-SHA256
	if len(secretKey) < minSecretKeyLength {
		if secretKey != "" {
			logrus.Warnf("Secret key is only %d bytes, padding to %d", len(secretKey), minSecretKeyLength)
		}
		secretKey += randomHex(minSecretKeyLength)
	}

	tokenExpiry := cfg.TokenExpiry
	if tokenExpiry == 0 {
		tokenExpiry = defaultTokenExpiry
	}

	authService = &AuthService{
		secretKey:   secretKey,
		staticToken: strings.TrimSpace(cfg.StaticToken),
		jwtEnabled:  cfg.JWTEnabled,
		tokenExpiry: tokenExpiry,
	}
	return authService
}

func loadOrCreateSecretKey(keyFile string) string {
	if data, err := os.ReadFile(keyFile); err == nil && len(strings.TrimSpace(string(data))) > 0 {
		secretKey := strings.TrimSpace(string(data))
		logrus.Debugf("Loaded persisted secret key from %s (length: %d bytes)", keyFile, len(secretKey))
		return secretKey
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "cloudrams-agent"
	}
	secretKey := fmt.Sprintf("cloudrams-%s-%s", hostname, randomHex(16))

	if err := os.WriteFile(keyFile, []byte(secretKey), 0600); err != nil {
		logrus.Warnf("Could not persist secret key to %s: %v", keyFile, err)
	} else {
		logrus.Infof("Generated and persisted secret key to %s", keyFile)
	}
	return secretKey
}

func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%0*d", n*2, time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// AuthRequired reports whether requests must carry credentials at all
func AuthRequired() bool {
	if authService == nil {
		return false
	}
	return authService.staticToken != "" || authService.jwtEnabled
}

// Authorize accepts either the static agent token or a valid bearer JWT.
// It returns nil when auth is not enforced.
func Authorize(agentToken, bearer string) error {
	if !AuthRequired() {
		return nil
	}

	agentToken = strings.TrimSpace(agentToken)
	if authService.staticToken != "" && agentToken != "" &&
		subtle.ConstantTimeCompare([]byte(agentToken), []byte(authService.staticToken)) == 1 {
		return nil
	}

	if bearer != "" {
		if _, err := ValidateToken(bearer); err != nil {
			return err
		}
		return nil
	}

	return fmt.Errorf("bad agent token")
}

// GenerateToken creates a new JWT token for a UI client
func GenerateToken(clientName string, expiry time.Duration) (string, error) {
	if authService == nil {
		return "", fmt.Errorf("auth service not initialized")
	}
	if expiry == 0 {
		expiry = authService.tokenExpiry
	}

	now := time.Now()
	claims := CustomClaims{
		ClientName: clientName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(authService.secretKey))
}

// ValidateToken verifies and parses a JWT token
func ValidateToken(tokenString string) (*CustomClaims, error) {
	if authService == nil {
		return nil, fmt.Errorf("auth service not initialized")
	}

	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(authService.secretKey), nil
	}, jwt.WithIssuer(tokenIssuer))
	if err != nil {
		return nil, err
	}

	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}

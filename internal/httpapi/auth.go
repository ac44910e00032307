package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Audience is the aud claim of API tokens.
const Audience = "meal-engine/api"

var errMissingToken = errors.New("missing bearer token")

// MintToken generates an HS256 JWT accepted by the API for ttl.
func MintToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("API_JWT_SECRET environment variable not set")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
		"aud": Audience,
	})
	return token.SignedString([]byte(secret))
}

// verifyToken checks signature, expiry and audience.
func verifyToken(secret, raw string) (*jwt.Token, error) {
	token, err := jwt.Parse(raw, func(*jwt.Token) (any, error) {
		return []byte(secret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(Audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	return token, nil
}

// bearerToken reads the token from the Authorization header. EventSource
// clients cannot set headers, so a token query parameter is accepted too.
func bearerToken(c *gin.Context) (string, error) {
	if h := c.GetHeader("Authorization"); h != "" {
		raw, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || raw == "" {
			return "", errMissingToken
		}
		return raw, nil
	}
	if raw := c.Query("token"); raw != "" {
		return raw, nil
	}
	return "", errMissingToken
}

// requireToken rejects requests without a valid token. An empty secret
// disables authentication.
func (s *Server) requireToken(c *gin.Context) {
	if s.secret == "" {
		c.Next()
		return
	}
	raw, err := bearerToken(c)
	if err == nil {
		_, err = verifyToken(s.secret, raw)
	}
	if err != nil {
		s.logger.Debug("Rejected API request", "path", c.Request.URL.Path, "error", err)
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}

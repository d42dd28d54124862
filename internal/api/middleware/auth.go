// Package middleware provides HTTP middleware for the Gin router.
//
// Go Learning Note — Middleware Pattern (Gin):
// In Gin, middleware is any function with the signature `gin.HandlerFunc`, which
// is `func(*gin.Context)`. Middleware functions form a chain: each one runs,
// optionally calls c.Next() to pass control to the next handler, and can call
// c.Abort() to stop the chain.
package middleware

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/gin-gonic/gin"

	"geoindex/internal/config"
	"geoindex/internal/logging"
)

// SubjectKey is the gin context key holding the authenticated caller: the JWT
// "sub" claim, or "shared-secret" for secret-header callers.
const SubjectKey = "auth_subject"

const sharedSecretSubject = "shared-secret"

var (
	errMissingAuth = errors.New("missing authorization header")
	errInvalidAuth = errors.New("invalid credentials")
)

// Auth checks the Authorization header. Two forms are accepted:
//   - the shared secret itself
//   - "Bearer <token>" where token is an HS256 JWT signed with the secret
//
// With an empty secret and cfg.Disabled set, every request is let through.
//
// Go Learning Note — Returning Functions (Closures):
// Auth() returns a gin.HandlerFunc. The outer function takes the
// configuration once at startup; the closure it returns captures it and runs
// on every request.
//
// Go Learning Note — c.Abort():
// c.Abort() prevents subsequent handlers in the chain from running. Without it,
// even after writing an error response, the next handler would still execute.
func Auth(cfg config.AuthConfig, logger *slog.Logger) gin.HandlerFunc {
	logger = logging.OrDiscard(logger)
	secret := []byte(cfg.Secret)

	if len(secret) == 0 && cfg.Disabled {
		return func(c *gin.Context) {
			c.Set(SubjectKey, "anonymous")
			c.Next()
		}
	}

	return func(c *gin.Context) {
		subject, err := authenticate(c.GetHeader("Authorization"), secret)
		if err != nil {
			logger.Debug("request rejected", "path", c.Request.URL.Path, "err", err)
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			c.Abort()
			return
		}
		c.Set(SubjectKey, subject)
		c.Next()
	}
}

func authenticate(header string, secret []byte) (string, error) {
	if header == "" {
		return "", errMissingAuth
	}
	if len(secret) == 0 {
		return "", errInvalidAuth
	}

	if subtle.ConstantTimeCompare([]byte(header), secret) == 1 {
		return sharedSecretSubject, nil
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errInvalidAuth
	}
	return verifyToken(parts[1], secret)
}

// verifyToken parses an HS256 token and returns its subject. jwt-go rejects
// expired tokens while validating the standard claims.
func verifyToken(tokenString string, secret []byte) (string, error) {
	claims := &jwt.StandardClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", errInvalidAuth, err)
	}
	if !token.Valid {
		return "", errInvalidAuth
	}
	if claims.Subject == "" {
		return "token", nil
	}
	return claims.Subject, nil
}

// IssueToken signs an HS256 token for subject valid for ttl.
func IssueToken(secret, subject string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", errors.New("cannot sign tokens without a secret")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.StandardClaims{
		Subject:   subject,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	return token.SignedString([]byte(secret))
}

// Subject returns the caller recorded by Auth.
func Subject(c *gin.Context) string {
	return c.GetString(SubjectKey)
}

package http

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"simple-bank/internal/auth"
)

const (
	requestIDHeader   = "X-Request-ID"
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	logEntryKey = "bank.log"
	claimsKey   = "bank.claims"
)

// requestLogger tags every request with an id and logs its outcome.
func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(requestIDHeader, requestID)

		entry := logger.WithField("request_id", requestID)
		c.Set(logEntryKey, entry)

		c.Next()

		status := c.Writer.Status()
		entry = entry.WithFields(logrus.Fields{
			"method":  c.Request.Method,
			"path":    c.Request.URL.Path,
			"status":  status,
			"latency": time.Since(start).String(),
			"client":  c.ClientIP(),
		})
		switch {
		case status >= http.StatusInternalServerError:
			entry.Error("request completed")
		case status >= http.StatusBadRequest:
			entry.Warn("request completed")
		default:
			entry.Info("request completed")
		}
	}
}

func entryFor(c *gin.Context, logger *logrus.Logger) *logrus.Entry {
	if v, ok := c.Get(logEntryKey); ok {
		if entry, ok := v.(*logrus.Entry); ok {
			return entry
		}
	}
	return logrus.NewEntry(logger)
}

// authenticate verifies the bearer token when tokens are required and stores its claims.
func (h *Handler) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.requireToken {
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header format must be Bearer {token}"})
			return
		}

		claims, err := h.tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// authorize reports whether the caller may act on email, writing 403 when not.
// Privileged roles may act on any record.
func (h *Handler) authorize(c *gin.Context, email string) bool {
	if !h.requireToken {
		return true
	}
	v, ok := c.Get(claimsKey)
	claims, _ := v.(*auth.Claims)
	if !ok || claims == nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return false
	}
	if claims.Role.Privileged() || strings.EqualFold(claims.Subject, strings.TrimSpace(email)) {
		return true
	}
	c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "token does not grant access to this account"})
	return false
}

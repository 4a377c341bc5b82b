package http

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"simple-bank/internal/idempotency"
)

// idempotent runs apply once per Idempotency-Key and account. A retry with the
// same request replays the stored response; reusing the key for a different
// request is refused. It must run after the caller has been authorized for
// req.Email.
func (h *Handler) idempotent(c *gin.Context, req transactionRequest, apply func()) {
	key := strings.TrimSpace(c.GetHeader(idempotencyHeader))
	if key == "" || h.idempotency == nil {
		apply()
		return
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))
	scoped := strings.Join([]string{c.Request.Method, c.FullPath(), email, key}, " ")
	fingerprint := requestFingerprint(c.Request.Method, c.FullPath(), email, req.Amount.String())
	log := entryFor(c, h.logger).WithField("idempotency_key", key)

	rec, err := h.idempotency.Begin(c.Request.Context(), scoped)
	switch {
	case errors.Is(err, idempotency.ErrInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		log.WithError(err).Error("idempotency store unavailable")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
		return
	case rec != nil:
		if rec.Fingerprint != fingerprint {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "idempotency key was already used for a different request"})
			return
		}
		c.Header(replayedHeader, "true")
		c.Data(rec.Status, rec.ContentType, rec.Body)
		return
	}

	// the outcome must be recorded even if the client went away
	ctx := context.WithoutCancel(c.Request.Context())
	released := false
	defer func() {
		if released {
			return
		}
		// apply panicked; free the key so the client can retry
		if err := h.idempotency.Abort(ctx, scoped); err != nil {
			log.WithError(err).Warn("release idempotency key")
		}
	}()

	w := &capturingWriter{ResponseWriter: c.Writer}
	c.Writer = w
	apply()
	c.Writer = w.ResponseWriter
	released = true

	if w.Status() >= http.StatusInternalServerError {
		if err := h.idempotency.Abort(ctx, scoped); err != nil {
			log.WithError(err).Warn("release idempotency key")
		}
		return
	}
	err = h.idempotency.Finish(ctx, scoped, idempotency.Record{
		Fingerprint: fingerprint,
		Status:      w.Status(),
		ContentType: w.Header().Get("Content-Type"),
		Body:        w.body.Bytes(),
	})
	if err != nil {
		log.WithError(err).Warn("store idempotent response")
	}
}

func requestFingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(sum[:])
}

// capturingWriter keeps a copy of the response body.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *capturingWriter) WriteString(s string) (int, error) {
	w.body.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

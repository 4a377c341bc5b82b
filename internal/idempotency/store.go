// Package idempotency remembers the outcome of balance mutations keyed by a
// client-supplied Idempotency-Key so that retried requests are not applied twice.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// maxPendingTTL bounds how long a reservation outlives a request that never
// finished or aborted it.
const maxPendingTTL = time.Minute

// ErrInProgress is returned by Begin while the first request holding a key is still running.
var ErrInProgress = errors.New("a request with this idempotency key is still in progress")

// Record is the stored response of a completed request. Fingerprint
// identifies the request body the response belongs to.
type Record struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store reserves keys and keeps completed responses for a limited time.
type Store interface {
	// Begin reserves key. It returns (nil, nil) when the caller now owns the
	// key, the stored Record when the key already completed, and
	// ErrInProgress when another request holds the reservation.
	Begin(ctx context.Context, key string) (*Record, error)
	// Finish stores the response for a reserved key.
	Finish(ctx context.Context, key string, rec Record) error
	// Abort drops a reservation so the key can be retried.
	Abort(ctx context.Context, key string) error
}

func pendingTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > maxPendingTTL {
		return maxPendingTTL
	}
	return ttl
}

package repository

import (
	"context"
	"errors"
	"time"
)

// ErrStoreUnavailable is returned when the backing store cannot perform an
// operation. It is fatal for the current request and never retried.
var ErrStoreUnavailable = errors.New("otp store unavailable")

// OTPStore is the storage backend for active verification codes. A record is
// never updated in place: it is created with Add, observed with Get, and
// removed by Delete or TTL expiry.
type OTPStore interface {
	// Get returns the active code for key, or ok=false when none is live.
	// An expired record is absent even if not yet physically purged.
	Get(ctx context.Context, key string) (code string, ok bool, err error)

	// Add atomically creates a record only if no live record exists for key
	// and reports whether the insert happened. Under concurrent callers for
	// the same key exactly one Add wins.
	Add(ctx context.Context, key, code string, ttl time.Duration) (bool, error)

	// Delete removes the record for key. Deleting an absent key is not an
	// error.
	Delete(ctx context.Context, key string) error
}

package storage

import (
	"context"

	apperrors "github.com/jrsteele09/flashybank-client/internal/errors"
)

// ErrNotFound is returned by Get when a key has never been set or was deleted.
var ErrNotFound = apperrors.ErrNotFound

// Store is the device-local key/value store that holds credentials, the quick
// mode expiry and preferences. Values are opaque strings.
type Store interface {
	// Get returns the value for key, or ErrNotFound
	Get(ctx context.Context, key string) (string, error)

	// Set creates or overwrites key
	Set(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

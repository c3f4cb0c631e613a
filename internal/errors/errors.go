package errors

import (
	"errors"
	"fmt"
)

// Common error types for the FlashyBank client
var (
	// Storage errors
	ErrNotFound      = errors.New("not found")
	ErrStoreLocked   = errors.New("store could not be decrypted")
	ErrStoreCorrupt  = errors.New("store is corrupt")
	ErrInvalidConfig = errors.New("invalid configuration")

	// Credential errors
	ErrNoCredentials  = errors.New("no stored credentials")
	ErrNoRefreshToken = errors.New("no refresh token")
	ErrRefreshFailed  = errors.New("token refresh failed")
	ErrNoSavedLogin   = errors.New("no saved login")
	ErrMalformedToken = errors.New("malformed token")

	// Preference errors
	ErrInvalidTheme = errors.New("invalid theme")
)

// Wrapf wraps an error with context using fmt.Errorf
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

// Is reports whether any error in err's chain matches target
func Is(err, target error) bool {
	return errors.Is(err, target)
}

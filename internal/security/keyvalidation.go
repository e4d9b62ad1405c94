package security

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyKey    = errors.New("storage key cannot be empty")
	ErrUnsafeKey   = errors.New("storage key contains unsafe path elements")
	ErrAbsoluteKey = errors.New("storage key must be relative")
)

// ValidateStorageKey rejects keys that could escape the storage root when
// mapped to a filesystem path.
func ValidateStorageKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if strings.HasPrefix(key, "/") || strings.HasPrefix(key, "\\") {
		return ErrAbsoluteKey
	}
	if strings.Contains(key, "\\") {
		return fmt.Errorf("%w: backslash in %q", ErrUnsafeKey, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." || part == "" {
			return fmt.Errorf("%w: %q", ErrUnsafeKey, key)
		}
	}
	return nil
}

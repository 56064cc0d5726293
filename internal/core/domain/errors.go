package domain

import (
	"errors"
	"fmt"
)

// Storage-level errors. Repository implementations wrap these so the logic
// layer can branch with errors.Is regardless of the backing store.
var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrDuplicateEmail    = fmt.Errorf("email: %w", ErrDuplicate)
	ErrDuplicateUsername = fmt.Errorf("username: %w", ErrDuplicate)
	ErrUnavailable       = errors.New("store unavailable")
)

package store

import (
	"errors"
	"fmt"
)

// CorruptionError indicates that persisted seal state is unreadable or
// internally inconsistent (stored digest does not match stored manifest).
// Corruption is fatal and requires operator intervention; the store never
// silently resets state.
type CorruptionError struct {
	Field   string
	Message string
}

func (e *CorruptionError) Error() string {
	return fmt.Sprintf("STATE_CORRUPTION: %s: %s", e.Field, e.Message)
}

// IsCorruption reports whether err is (or wraps) a CorruptionError.
func IsCorruption(err error) bool {
	var ce *CorruptionError
	return errors.As(err, &ce)
}

// ErrStaleGeneration is returned by CommitSealState when the caller's view
// of the current generation is out of date. Under the single-writer
// discipline this indicates a serialization bug, not normal contention.
var ErrStaleGeneration = errors.New("seal state generation advanced concurrently")

package storage

import (
	"fmt"

	"solana-presale/internal/domain"
)

// CheckTransition validates a status update from current to next.
// It returns false with a nil error when the update is a no-op.
func CheckTransition(current, next domain.SubmissionStatus) (bool, error) {
	if !next.IsValid() {
		return false, fmt.Errorf("%w: unknown status %q", ErrInvalidInput, next)
	}
	if current == next {
		return false, nil
	}
	if !current.CanTransition(next) {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}
	return true, nil
}

package storage

import (
	"context"

	"solana-presale/internal/domain"
)

// HistoryStore provides access to the purchase submission history.
// Records are appended once and afterwards only their status changes.
type HistoryStore interface {
	// Append adds a new record. Returns ErrDuplicateKey if submission_id exists.
	Append(ctx context.Context, r *domain.SubmissionRecord) error

	// UpdateStatus moves a record to a new status. Returns ErrNotFound if the record
	// does not exist and ErrInvalidTransition if the transition is not allowed.
	// Re-applying the current status is a no-op.
	UpdateStatus(ctx context.Context, submissionID string, status domain.SubmissionStatus) error

	// Get retrieves a record by submission ID. Returns ErrNotFound if not exists.
	Get(ctx context.Context, submissionID string) (*domain.SubmissionRecord, error)

	// LoadAll retrieves all records in append order.
	LoadAll(ctx context.Context) ([]*domain.SubmissionRecord, error)

	// ListByStatus retrieves records with the given status in append order.
	ListByStatus(ctx context.Context, status domain.SubmissionStatus) ([]*domain.SubmissionRecord, error)
}

// AttemptLog provides access to the purchase attempt audit log.
type AttemptLog interface {
	// Insert adds a new attempt event. Returns ErrDuplicateKey if attempt_id exists.
	Insert(ctx context.Context, e *domain.AttemptEvent) error

	// GetByRequestID retrieves all events for a request, ordered by occurred_at ASC.
	GetByRequestID(ctx context.Context, requestID string) ([]*domain.AttemptEvent, error)
}

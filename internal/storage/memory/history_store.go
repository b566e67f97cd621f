package memory

import (
	"context"
	"sync"
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/storage"
)

// HistoryStore is an in-memory implementation of storage.HistoryStore.
type HistoryStore struct {
	mu    sync.RWMutex
	order []string                            // submission ids in append order
	data  map[string]*domain.SubmissionRecord // keyed by submission_id
	now   func() time.Time
}

// NewHistoryStore creates a new in-memory history store.
func NewHistoryStore() *HistoryStore {
	return &HistoryStore{
		data: make(map[string]*domain.SubmissionRecord),
		now:  time.Now,
	}
}

// NewHistoryStoreFrom creates a store seeded with records in the given order.
// Used by persistent backends that keep a memory image.
func NewHistoryStoreFrom(records []*domain.SubmissionRecord) (*HistoryStore, error) {
	s := NewHistoryStore()
	for _, r := range records {
		if err := s.Append(context.Background(), r); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Append adds a new record. Returns ErrDuplicateKey if submission_id exists.
func (s *HistoryStore) Append(_ context.Context, r *domain.SubmissionRecord) error {
	if r == nil || r.SubmissionID == "" || !r.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[r.SubmissionID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *r
	if copy.UpdatedAt.IsZero() {
		copy.UpdatedAt = copy.CreatedAt
	}
	s.data[r.SubmissionID] = &copy
	s.order = append(s.order, r.SubmissionID)
	return nil
}

// UpdateStatus moves a record to a new status.
func (s *HistoryStore) UpdateStatus(_ context.Context, submissionID string, status domain.SubmissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.data[submissionID]
	if !exists {
		return storage.ErrNotFound
	}

	changed, err := storage.CheckTransition(r.Status, status)
	if err != nil || !changed {
		return err
	}

	r.Status = status
	r.UpdatedAt = s.now()
	return nil
}

// Get retrieves a record by submission ID. Returns ErrNotFound if not exists.
func (s *HistoryStore) Get(_ context.Context, submissionID string) (*domain.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[submissionID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	copy := *r
	return &copy, nil
}

// LoadAll retrieves all records in append order.
func (s *HistoryStore) LoadAll(_ context.Context) ([]*domain.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.SubmissionRecord, 0, len(s.order))
	for _, id := range s.order {
		copy := *s.data[id]
		result = append(result, &copy)
	}
	return result, nil
}

// ListByStatus retrieves records with the given status in append order.
func (s *HistoryStore) ListByStatus(_ context.Context, status domain.SubmissionStatus) ([]*domain.SubmissionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.SubmissionRecord
	for _, id := range s.order {
		r := s.data[id]
		if r.Status == status {
			copy := *r
			result = append(result, &copy)
		}
	}
	return result, nil
}

var _ storage.HistoryStore = (*HistoryStore)(nil)

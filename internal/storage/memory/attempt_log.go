package memory

import (
	"context"
	"sort"
	"sync"

	"solana-presale/internal/domain"
	"solana-presale/internal/storage"
)

// AttemptLog is an in-memory implementation of storage.AttemptLog.
type AttemptLog struct {
	mu   sync.RWMutex
	seen map[string]struct{}               // attempt ids
	data map[string][]*domain.AttemptEvent // keyed by request_id
}

// NewAttemptLog creates a new in-memory attempt log.
func NewAttemptLog() *AttemptLog {
	return &AttemptLog{
		seen: make(map[string]struct{}),
		data: make(map[string][]*domain.AttemptEvent),
	}
}

// Insert adds a new attempt event. Returns ErrDuplicateKey if attempt_id exists.
func (l *AttemptLog) Insert(_ context.Context, e *domain.AttemptEvent) error {
	if e == nil || e.AttemptID == "" || e.RequestID == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.seen[e.AttemptID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := *e
	l.seen[e.AttemptID] = struct{}{}
	l.data[e.RequestID] = append(l.data[e.RequestID], &copy)
	return nil
}

// GetByRequestID retrieves all events for a request, ordered by occurred_at ASC.
func (l *AttemptLog) GetByRequestID(_ context.Context, requestID string) ([]*domain.AttemptEvent, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := l.data[requestID]
	result := make([]*domain.AttemptEvent, 0, len(events))
	for _, e := range events {
		copy := *e
		result = append(result, &copy)
	}

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].OccurredAt.Before(result[j].OccurredAt)
	})

	return result, nil
}

var _ storage.AttemptLog = (*AttemptLog)(nil)

package clickhouse

import (
	"context"
	"errors"
	"fmt"
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/observability"
	"solana-presale/internal/storage"
)

// AttemptLog implements storage.AttemptLog using ClickHouse.
type AttemptLog struct {
	conn *Conn
}

// NewAttemptLog creates a new AttemptLog.
func NewAttemptLog(conn *Conn) *AttemptLog {
	return &AttemptLog{conn: conn}
}

// Compile-time interface check.
var _ storage.AttemptLog = (*AttemptLog)(nil)

// Insert adds a new attempt event. Returns ErrDuplicateKey if attempt_id exists.
// MergeTree does not enforce uniqueness, so the key is checked first.
func (l *AttemptLog) Insert(ctx context.Context, e *domain.AttemptEvent) (err error) {
	defer observe("attempt_insert", time.Now(), &err)

	if e == nil || e.AttemptID == "" || e.RequestID == "" {
		return storage.ErrInvalidInput
	}

	exists, err := l.exists(ctx, e.RequestID, e.AttemptID)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if exists {
		return storage.ErrDuplicateKey
	}

	query := `
		INSERT INTO purchase_attempts (
			attempt_id, request_id, payer, attempt,
			stage, outcome, submission_id, error, occurred_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	err = l.conn.Exec(ctx, query,
		e.AttemptID, e.RequestID, e.Payer, uint16(e.Attempt),
		string(e.Stage), string(e.Outcome), e.SubmissionID, e.Error, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("insert attempt event: %w", err)
	}
	return nil
}

// GetByRequestID retrieves all events for a request, ordered by occurred_at ASC.
func (l *AttemptLog) GetByRequestID(ctx context.Context, requestID string) (_ []*domain.AttemptEvent, err error) {
	defer observe("attempt_get_by_request", time.Now(), &err)

	query := `
		SELECT
			attempt_id, request_id, payer, attempt,
			stage, outcome, submission_id, error, occurred_at
		FROM purchase_attempts
		WHERE request_id = ?
		ORDER BY occurred_at ASC, attempt_id ASC
	`

	rows, err := l.conn.Query(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("query by request id: %w", err)
	}
	defer rows.Close()

	var result []*domain.AttemptEvent
	for rows.Next() {
		var (
			e              domain.AttemptEvent
			attempt        uint16
			stage, outcome string
		)
		if err := rows.Scan(
			&e.AttemptID, &e.RequestID, &e.Payer, &attempt,
			&stage, &outcome, &e.SubmissionID, &e.Error, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt event: %w", err)
		}
		e.Attempt = int(attempt)
		e.Stage = domain.AttemptStage(stage)
		e.Outcome = domain.AttemptOutcome(outcome)
		result = append(result, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt events: %w", err)
	}

	return result, nil
}

func (l *AttemptLog) exists(ctx context.Context, requestID, attemptID string) (bool, error) {
	query := `SELECT count(*) FROM purchase_attempts WHERE request_id = ? AND attempt_id = ?`

	var count uint64
	if err := l.conn.QueryRow(ctx, query, requestID, attemptID).Scan(&count); err != nil {
		return false, err
	}
	return count > 0, nil
}

func observe(operation string, start time.Time, errp *error) {
	err := *errp
	if errors.Is(err, storage.ErrDuplicateKey) {
		err = nil
	}
	observability.RecordDBQuery("clickhouse", operation, time.Since(start).Seconds(), err)
}

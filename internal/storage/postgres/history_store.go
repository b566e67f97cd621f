package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"solana-presale/internal/domain"
	"solana-presale/internal/storage"
)

// HistoryStore implements storage.HistoryStore using PostgreSQL.
type HistoryStore struct {
	pool *Pool
	now  func() time.Time
}

// NewHistoryStore creates a new HistoryStore.
func NewHistoryStore(pool *Pool) *HistoryStore {
	return &HistoryStore{pool: pool, now: time.Now}
}

// Compile-time interface check.
var _ storage.HistoryStore = (*HistoryStore)(nil)

// Numeric columns travel as text and are cast server-side so decimal precision is kept.
const selectColumns = `
	submission_id, request_id, payer, payee,
	amount::text, cost::text, cost_lamports,
	checkpoint, expiry_height, attempt, status,
	created_at, updated_at
`

// Append adds a new record. Returns ErrDuplicateKey if submission_id exists.
func (s *HistoryStore) Append(ctx context.Context, r *domain.SubmissionRecord) (err error) {
	defer observe("history_append", time.Now(), &err)

	if r == nil || r.SubmissionID == "" || !r.Status.IsValid() {
		return storage.ErrInvalidInput
	}

	updatedAt := r.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = r.CreatedAt
	}

	query := `
		INSERT INTO submission_history (
			submission_id, request_id, payer, payee,
			amount, cost, cost_lamports,
			checkpoint, expiry_height, attempt, status,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::text::numeric, $6::text::numeric, $7,
			$8, $9, $10, $11,
			$12, $13
		)
	`

	_, err = s.pool.Exec(ctx, query,
		r.SubmissionID, r.RequestID, r.Payer, r.Payee,
		r.Amount.String(), r.Cost.String(), int64(r.CostLamports),
		r.Checkpoint, int64(r.ExpiryHeight), r.Attempt, string(r.Status),
		r.CreatedAt, updatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert submission record: %w", err)
	}
	return nil
}

// UpdateStatus moves a record to a new status inside a row-locking transaction.
func (s *HistoryStore) UpdateStatus(ctx context.Context, submissionID string, status domain.SubmissionStatus) (err error) {
	defer observe("history_update_status", time.Now(), &err)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var current string
	err = tx.QueryRow(ctx,
		`SELECT status FROM submission_history WHERE submission_id = $1 FOR UPDATE`,
		submissionID,
	).Scan(&current)
	if err != nil {
		if isNotFoundError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("lock submission record: %w", err)
	}

	changed, err := storage.CheckTransition(domain.SubmissionStatus(current), status)
	if err != nil || !changed {
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE submission_history SET status = $2, updated_at = $3 WHERE submission_id = $1`,
		submissionID, string(status), s.now(),
	)
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Get retrieves a record by submission ID. Returns ErrNotFound if not exists.
func (s *HistoryStore) Get(ctx context.Context, submissionID string) (_ *domain.SubmissionRecord, err error) {
	defer observe("history_get", time.Now(), &err)

	query := `SELECT` + selectColumns + `FROM submission_history WHERE submission_id = $1`

	r, err := scanRecord(s.pool.QueryRow(ctx, query, submissionID))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get submission record: %w", err)
	}
	return r, nil
}

// LoadAll retrieves all records in append order.
func (s *HistoryStore) LoadAll(ctx context.Context) (_ []*domain.SubmissionRecord, err error) {
	defer observe("history_load_all", time.Now(), &err)

	query := `SELECT` + selectColumns + `FROM submission_history ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("load submission history: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListByStatus retrieves records with the given status in append order.
func (s *HistoryStore) ListByStatus(ctx context.Context, status domain.SubmissionStatus) (_ []*domain.SubmissionRecord, err error) {
	defer observe("history_list_by_status", time.Now(), &err)

	query := `SELECT` + selectColumns + `FROM submission_history WHERE status = $1 ORDER BY seq ASC`

	rows, err := s.pool.Query(ctx, query, string(status))
	if err != nil {
		return nil, fmt.Errorf("list submission records by status: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

func scanRecord(row pgx.Row) (*domain.SubmissionRecord, error) {
	var (
		r            domain.SubmissionRecord
		amount, cost string
		costLamports int64
		expiryHeight int64
		status       string
	)

	err := row.Scan(
		&r.SubmissionID, &r.RequestID, &r.Payer, &r.Payee,
		&amount, &cost, &costLamports,
		&r.Checkpoint, &expiryHeight, &r.Attempt, &status,
		&r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if r.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if r.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("parse cost %q: %w", cost, err)
	}
	r.CostLamports = uint64(costLamports)
	r.ExpiryHeight = uint64(expiryHeight)
	r.Status = domain.SubmissionStatus(status)

	return &r, nil
}

func scanRecords(rows pgx.Rows) ([]*domain.SubmissionRecord, error) {
	var result []*domain.SubmissionRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan submission record: %w", err)
		}
		result = append(result, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate submission records: %w", err)
	}
	return result, nil
}

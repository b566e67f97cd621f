// Package file provides a HistoryStore persisted as a JSON document on local disk,
// so purchase history survives process restarts without a database.
package file

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-presale/internal/domain"
	"solana-presale/internal/storage"
	"solana-presale/internal/storage/memory"
)

// DefaultKey is the fixed name of the history document.
const DefaultKey = "presale_tx_history"

// HistoryStore implements storage.HistoryStore on top of a JSON file.
// Every mutation rewrites the whole document through a temp file and rename.
type HistoryStore struct {
	mu   sync.Mutex
	path string
	mem  *memory.HistoryStore
}

// Open loads the history document <dir>/<key>.json, creating an empty store if absent.
func Open(dir, key string) (*HistoryStore, error) {
	if key == "" {
		key = DefaultKey
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}

	path := filepath.Join(dir, key+".json")
	records, err := readDocument(path)
	if err != nil {
		return nil, err
	}

	mem, err := memory.NewHistoryStoreFrom(records)
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", path, err)
	}

	return &HistoryStore{path: path, mem: mem}, nil
}

// Path returns the location of the history document.
func (s *HistoryStore) Path() string {
	return s.path
}

// Append adds a new record and persists the document.
func (s *HistoryStore) Append(ctx context.Context, r *domain.SubmissionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, err := s.mem.LoadAll(ctx)
	if err != nil {
		return err
	}
	if err := s.mem.Append(ctx, r); err != nil {
		return err
	}
	return s.flushOrRestore(ctx, prev)
}

// UpdateStatus moves a record to a new status and persists the document.
func (s *HistoryStore) UpdateStatus(ctx context.Context, submissionID string, status domain.SubmissionStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	before, err := s.mem.Get(ctx, submissionID)
	if err != nil {
		return err
	}
	prev, err := s.mem.LoadAll(ctx)
	if err != nil {
		return err
	}
	if err := s.mem.UpdateStatus(ctx, submissionID, status); err != nil {
		return err
	}
	if before.Status == status {
		return nil
	}
	return s.flushOrRestore(ctx, prev)
}

// Get retrieves a record by submission ID.
func (s *HistoryStore) Get(ctx context.Context, submissionID string) (*domain.SubmissionRecord, error) {
	return s.mem.Get(ctx, submissionID)
}

// LoadAll retrieves all records in append order.
func (s *HistoryStore) LoadAll(ctx context.Context) ([]*domain.SubmissionRecord, error) {
	return s.mem.LoadAll(ctx)
}

// ListByStatus retrieves records with the given status in append order.
func (s *HistoryStore) ListByStatus(ctx context.Context, status domain.SubmissionStatus) ([]*domain.SubmissionRecord, error) {
	return s.mem.ListByStatus(ctx, status)
}

// flushOrRestore persists the memory image, or rolls it back to prev so memory
// never holds state that is not on disk. Caller holds s.mu.
func (s *HistoryStore) flushOrRestore(ctx context.Context, prev []*domain.SubmissionRecord) error {
	err := s.flush(ctx)
	if err == nil {
		return nil
	}
	mem, rerr := memory.NewHistoryStoreFrom(prev)
	if rerr != nil {
		return errors.Join(err, fmt.Errorf("restore history: %w", rerr))
	}
	s.mem = mem
	return err
}

// flush writes the current memory image to disk. Caller holds s.mu.
func (s *HistoryStore) flush(ctx context.Context) error {
	records, err := s.mem.LoadAll(ctx)
	if err != nil {
		return err
	}

	doc := document{Version: documentVersion, Records: make([]fileRecord, 0, len(records))}
	for _, r := range records {
		doc.Records = append(doc.Records, toFileRecord(r))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp history file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close history: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace history: %w", err)
	}
	return nil
}

const documentVersion = 1

type document struct {
	Version int          `json:"version"`
	Records []fileRecord `json:"records"`
}

type fileRecord struct {
	SubmissionID string          `json:"submission_id"`
	RequestID    string          `json:"request_id"`
	Payer        string          `json:"payer"`
	Payee        string          `json:"payee"`
	Amount       decimal.Decimal `json:"amount"`
	Cost         decimal.Decimal `json:"cost"`
	CostLamports uint64          `json:"cost_lamports"`
	Checkpoint   string          `json:"checkpoint"`
	ExpiryHeight uint64          `json:"expiry_height"`
	Attempt      int             `json:"attempt"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toFileRecord(r *domain.SubmissionRecord) fileRecord {
	return fileRecord{
		SubmissionID: r.SubmissionID,
		RequestID:    r.RequestID,
		Payer:        r.Payer,
		Payee:        r.Payee,
		Amount:       r.Amount,
		Cost:         r.Cost,
		CostLamports: r.CostLamports,
		Checkpoint:   r.Checkpoint,
		ExpiryHeight: r.ExpiryHeight,
		Attempt:      r.Attempt,
		Status:       string(r.Status),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (f fileRecord) toDomain() *domain.SubmissionRecord {
	return &domain.SubmissionRecord{
		SubmissionID: f.SubmissionID,
		RequestID:    f.RequestID,
		Payer:        f.Payer,
		Payee:        f.Payee,
		Amount:       f.Amount,
		Cost:         f.Cost,
		CostLamports: f.CostLamports,
		Checkpoint:   f.Checkpoint,
		ExpiryHeight: f.ExpiryHeight,
		Attempt:      f.Attempt,
		Status:       domain.SubmissionStatus(f.Status),
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.UpdatedAt,
	}
}

func readDocument(path string) ([]*domain.SubmissionRecord, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history %s: %w", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", path, err)
	}
	if doc.Version != documentVersion {
		return nil, fmt.Errorf("history %s: unsupported version %d", path, doc.Version)
	}

	records := make([]*domain.SubmissionRecord, 0, len(doc.Records))
	for _, f := range doc.Records {
		records = append(records, f.toDomain())
	}
	return records, nil
}

var _ storage.HistoryStore = (*HistoryStore)(nil)

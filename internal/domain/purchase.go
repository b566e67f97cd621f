package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRequest is a single user intent to buy tokens.
// It lives only for the duration of one submission.
type PurchaseRequest struct {
	RequestID   string          // uuid assigned on entry
	TokenAmount decimal.Decimal // must be a positive integer
	UnitPrice   decimal.Decimal // SOL per token, copied from the sale config
	Payer       string          // connected wallet (base58)
	Payee       string          // sale treasury (base58)
}

// Cost returns the SOL cost of the request.
func (r PurchaseRequest) Cost() decimal.Decimal {
	return r.UnitPrice.Mul(r.TokenAmount)
}

// CostLamports returns the request cost in lamports.
func (r PurchaseRequest) CostLamports() uint64 {
	return ToLamports(r.Cost())
}

// SubmissionStatus is the lifecycle state of a SubmissionRecord.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusConfirmed SubmissionStatus = "confirmed"
	StatusFailed    SubmissionStatus = "failed"
)

// String returns the string representation of SubmissionStatus.
func (s SubmissionStatus) String() string {
	return string(s)
}

// IsValid checks if the status is a known value.
func (s SubmissionStatus) IsValid() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusFailed
}

// IsTerminal reports whether no further transitions are allowed.
func (s SubmissionStatus) IsTerminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// CanTransition reports whether a record in status s may move to next.
// Re-applying the current status is always allowed (no-op).
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	if !next.IsValid() {
		return false
	}
	if s == next {
		return true
	}
	return s == StatusPending && next.IsTerminal()
}

// SubmissionRecord is one broadcast purchase attempt in the history log.
// Only Status and UpdatedAt change after the record is appended.
type SubmissionRecord struct {
	SubmissionID string // transaction signature (base58)
	RequestID    string
	Payer        string
	Payee        string

	// Snapshot of the originating request
	Amount       decimal.Decimal // tokens
	Cost         decimal.Decimal // SOL
	CostLamports uint64

	// Checkpoint the transaction cites
	Checkpoint   string // recent blockhash
	ExpiryHeight uint64 // last valid block height

	Attempt   int
	Status    SubmissionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

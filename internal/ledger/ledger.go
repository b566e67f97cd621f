// Package ledger adapts the Solana RPC and WebSocket clients into the
// balance, checkpoint, broadcast and confirmation operations a payment needs.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrCheckpointExpired is returned by Confirm when the block height passed the
// checkpoint's last valid height without the signature reaching the commitment.
var ErrCheckpointExpired = errors.New("checkpoint expired before confirmation")

// ExecutionError reports a transaction that landed but failed on the ledger.
// Retrying it would not help.
type ExecutionError struct {
	Signature string
	Detail    string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("transaction %s failed on ledger: %s", e.Signature, e.Detail)
}

// newExecutionError renders the node's err value.
func newExecutionError(signature string, raw interface{}) *ExecutionError {
	detail, err := json.Marshal(raw)
	if err != nil {
		detail = []byte(fmt.Sprint(raw))
	}
	return &ExecutionError{Signature: signature, Detail: string(detail)}
}

// Checkpoint is a recent blockhash and the last block height it may be cited at.
type Checkpoint struct {
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus summarises what the ledger knows about a signature.
type SignatureStatus struct {
	Found bool
	// Landed is true once the signature reached the client's commitment.
	Landed bool
	Slot   uint64
	// Err is set when the transaction landed with an execution error.
	Err *ExecutionError
}

// Client is the ledger surface used by purchases and the reconciler.
type Client interface {
	GetBalance(ctx context.Context, owner string) (uint64, error)
	FetchRecentCheckpoint(ctx context.Context) (Checkpoint, error)
	SendTransaction(ctx context.Context, raw []byte) (string, error)
	// Confirm blocks until the signature lands, fails on the ledger, or the checkpoint expires.
	Confirm(ctx context.Context, signature string, cp Checkpoint) error
	SignatureStatus(ctx context.Context, signature string) (SignatureStatus, error)
	BlockHeight(ctx context.Context) (uint64, error)
}

package solana

import "context"

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// RPCClient defines the subset of the Solana RPC HTTP interface used for payments.
type RPCClient interface {
	// GetBalance returns the lamport balance of an account.
	GetBalance(ctx context.Context, pubkey string, commitment string) (uint64, error)

	// GetLatestBlockhash returns a recent blockhash and the last block height it is valid for.
	GetLatestBlockhash(ctx context.Context, commitment string) (*LatestBlockhash, error)

	// SendTransaction submits a fully signed, wire-encoded transaction and returns its signature.
	SendTransaction(ctx context.Context, raw []byte, opts *SendOpts) (string, error)

	// GetSignatureStatuses looks up signatures. Unknown signatures yield nil entries.
	GetSignatureStatuses(ctx context.Context, signatures []string, searchHistory bool) ([]*SignatureStatus, error)

	// GetBlockHeight returns the current block height.
	GetBlockHeight(ctx context.Context, commitment string) (uint64, error)
}

package ledger

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-presale/internal/solana"
)

// DefaultPollInterval is the status polling period used by Confirm.
const DefaultPollInterval = 2 * time.Second

// RPCOptions configures an RPC ledger client.
type RPCOptions struct {
	// Commitment for reads and confirmation. Empty means confirmed.
	Commitment string
	// PollInterval for signature status polling during Confirm.
	PollInterval time.Duration
	// WS enables signatureSubscribe; nil means polling only.
	WS solana.WSClient
	// Logger for diagnostics. Nil uses log.Default().
	Logger *log.Logger
}

// RPC implements Client on top of the Solana JSON-RPC client.
type RPC struct {
	rpc          solana.RPCClient
	ws           solana.WSClient
	commitment   string
	pollInterval time.Duration
	logger       *log.Logger
}

// NewRPC creates a ledger client.
func NewRPC(rpc solana.RPCClient, opts RPCOptions) *RPC {
	if opts.Commitment == "" {
		opts.Commitment = solana.CommitmentConfirmed
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &RPC{
		rpc:          rpc,
		ws:           opts.WS,
		commitment:   opts.Commitment,
		pollInterval: opts.PollInterval,
		logger:       opts.Logger,
	}
}

// Compile-time interface check.
var _ Client = (*RPC)(nil)

// GetBalance returns the owner's lamport balance.
func (c *RPC) GetBalance(ctx context.Context, owner string) (uint64, error) {
	balance, err := c.rpc.GetBalance(ctx, owner, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// FetchRecentCheckpoint returns a fresh blockhash with its expiry height.
func (c *RPC) FetchRecentCheckpoint(ctx context.Context) (Checkpoint, error) {
	bh, err := c.rpc.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return Checkpoint{}, fmt.Errorf("fetch checkpoint: %w", err)
	}
	return Checkpoint{
		Blockhash:            bh.Blockhash,
		LastValidBlockHeight: bh.LastValidBlockHeight,
	}, nil
}

// SendTransaction broadcasts a signed transaction with preflight at the client's commitment.
func (c *RPC) SendTransaction(ctx context.Context, raw []byte) (string, error) {
	sig, err := c.rpc.SendTransaction(ctx, raw, &solana.SendOpts{
		PreflightCommitment: c.commitment,
	})
	if err != nil {
		return "", fmt.Errorf("send transaction: %w", err)
	}
	return sig, nil
}

// SignatureStatus looks the signature up including transaction history.
func (c *RPC) SignatureStatus(ctx context.Context, signature string) (SignatureStatus, error) {
	statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature}, true)
	if err != nil {
		return SignatureStatus{}, fmt.Errorf("signature status: %w", err)
	}
	if len(statuses) == 0 || statuses[0] == nil {
		return SignatureStatus{}, nil
	}

	st := statuses[0]
	out := SignatureStatus{
		Found:  true,
		Landed: st.Reached(c.commitment),
		Slot:   st.Slot,
	}
	if st.Err != nil {
		out.Err = newExecutionError(signature, st.Err)
	}
	return out, nil
}

// BlockHeight returns the current block height.
func (c *RPC) BlockHeight(ctx context.Context) (uint64, error) {
	height, err := c.rpc.GetBlockHeight(ctx, c.commitment)
	if err != nil {
		return 0, fmt.Errorf("block height: %w", err)
	}
	return height, nil
}

// Confirm waits for the signature to reach the client's commitment.
// A signatureSubscribe notification short-cuts polling when a WebSocket client is set;
// polling still runs so that expiry is detected and missed notifications are covered.
func (c *RPC) Confirm(ctx context.Context, signature string, cp Checkpoint) error {
	var notifications <-chan solana.SignatureNotification
	if c.ws != nil {
		sub, err := c.ws.SubscribeSignature(ctx, signature, c.commitment)
		if err != nil {
			c.logger.Printf("[ledger] subscribe %s failed, polling only: %v", signature, err)
		} else {
			defer sub.Unsubscribe()
			notifications = sub.C
		}
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		done, err := c.checkOnce(ctx, signature, cp)
		if done {
			return err
		}
		if err != nil {
			c.logger.Printf("[ledger] confirm %s: %v", signature, err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-notifications:
			if !ok {
				notifications = nil // closed without result, keep polling
				continue
			}
			if n.Err != nil {
				return newExecutionError(signature, n.Err)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// checkOnce polls status then block height. done reports a final outcome.
func (c *RPC) checkOnce(ctx context.Context, signature string, cp Checkpoint) (done bool, err error) {
	st, err := c.SignatureStatus(ctx, signature)
	if err != nil {
		return false, err
	}
	if st.Found && st.Err != nil {
		return true, st.Err
	}
	if st.Landed {
		return true, nil
	}

	height, err := c.BlockHeight(ctx)
	if err != nil {
		return false, err
	}
	if height > cp.LastValidBlockHeight {
		// the signature may have landed between the two calls
		st, err = c.SignatureStatus(ctx, signature)
		if err != nil {
			return false, err
		}
		if st.Err != nil {
			return true, st.Err
		}
		if st.Landed {
			return true, nil
		}
		if st.Found {
			// seen but below commitment; it can no longer be dropped for expiry
			return false, nil
		}
		return true, fmt.Errorf("%w: height %d > %d", ErrCheckpointExpired, height, cp.LastValidBlockHeight)
	}
	return false, nil
}

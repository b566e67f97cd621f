package stub

import (
	"context"
	"sync"

	"solana-presale/internal/solana"
)

// RPCClient implements solana.RPCClient for testing.
type RPCClient struct {
	mu sync.Mutex

	Balances    map[string]uint64
	Blockhash   solana.LatestBlockhash
	BlockHeight uint64
	Statuses    map[string]*solana.SignatureStatus

	// SendSignature is returned by SendTransaction; SendErr takes precedence.
	SendSignature string
	SendErr       error
	BlockhashErr  error
	StatusErr     error

	// OnBlockHeight, if set, runs on each GetBlockHeight call with the lock held.
	// It may mutate fields directly to advance the simulated chain.
	OnBlockHeight func(c *RPCClient)

	Sent [][]byte
}

// NewRPCClient creates a new stub RPC client.
func NewRPCClient() *RPCClient {
	return &RPCClient{
		Balances: make(map[string]uint64),
		Statuses: make(map[string]*solana.SignatureStatus),
	}
}

// Compile-time interface check.
var _ solana.RPCClient = (*RPCClient)(nil)

// GetBalance returns the stored balance, zero for unknown accounts.
func (c *RPCClient) GetBalance(_ context.Context, pubkey string, _ string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.Balances[pubkey], nil
}

// GetLatestBlockhash returns the configured blockhash.
func (c *RPCClient) GetLatestBlockhash(_ context.Context, _ string) (*solana.LatestBlockhash, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.BlockhashErr != nil {
		return nil, c.BlockhashErr
	}
	bh := c.Blockhash
	return &bh, nil
}

// SendTransaction records the payload and returns SendSignature.
func (c *RPCClient) SendTransaction(_ context.Context, raw []byte, _ *solana.SendOpts) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.SendErr != nil {
		return "", c.SendErr
	}
	c.Sent = append(c.Sent, append([]byte(nil), raw...))
	return c.SendSignature, nil
}

// GetSignatureStatuses returns stored statuses, nil for unknown signatures.
func (c *RPCClient) GetSignatureStatuses(_ context.Context, signatures []string, _ bool) ([]*solana.SignatureStatus, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.StatusErr != nil {
		return nil, c.StatusErr
	}
	out := make([]*solana.SignatureStatus, len(signatures))
	for i, sig := range signatures {
		if st, ok := c.Statuses[sig]; ok {
			cp := *st
			out[i] = &cp
		}
	}
	return out, nil
}

// GetBlockHeight returns the configured block height.
func (c *RPCClient) GetBlockHeight(_ context.Context, _ string) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OnBlockHeight != nil {
		c.OnBlockHeight(c)
	}
	return c.BlockHeight, nil
}

// SetStatus stores a signature status.
func (c *RPCClient) SetStatus(signature string, status *solana.SignatureStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Statuses[signature] = status
}

// SentCount returns how many transactions were submitted.
func (c *RPCClient) SentCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.Sent)
}

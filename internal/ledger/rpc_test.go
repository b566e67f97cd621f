package ledger

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-presale/internal/solana"
	"solana-presale/internal/solana/stub"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newTestLedger(rpc solana.RPCClient, ws solana.WSClient) *RPC {
	return NewRPC(rpc, RPCOptions{
		PollInterval: 5 * time.Millisecond,
		WS:           ws,
		Logger:       quietLogger(),
	})
}

// fakeWS hands out a pre-built notification channel.
type fakeWS struct {
	ch           chan solana.SignatureNotification
	err          error
	unsubscribed bool
}

func (f *fakeWS) SubscribeSignature(_ context.Context, _, _ string) (*solana.SignatureSubscription, error) {
	if f.err != nil {
		return nil, f.err
	}
	return solana.NewSignatureSubscription(f.ch, func() { f.unsubscribed = true }), nil
}

func (f *fakeWS) Close() error { return nil }

func TestRPC_FetchRecentCheckpoint(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Blockhash = solana.LatestBlockhash{Blockhash: "hash1", LastValidBlockHeight: 150}

	cp, err := newTestLedger(rpc, nil).FetchRecentCheckpoint(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Checkpoint{Blockhash: "hash1", LastValidBlockHeight: 150}, cp)
}

func TestRPC_FetchRecentCheckpoint_Error(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockhashErr = errors.New("node unavailable")

	_, err := newTestLedger(rpc, nil).FetchRecentCheckpoint(context.Background())
	assert.ErrorContains(t, err, "node unavailable")
}

func TestRPC_GetBalance(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.Balances["payer"] = 42

	balance, err := newTestLedger(rpc, nil).GetBalance(context.Background(), "payer")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), balance)
}

func TestRPC_SignatureStatus(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("ok", &solana.SignatureStatus{Slot: 9, ConfirmationStatus: solana.CommitmentConfirmed})
	rpc.SetStatus("processing", &solana.SignatureStatus{Slot: 10, ConfirmationStatus: solana.CommitmentProcessed})
	rpc.SetStatus("bad", &solana.SignatureStatus{Slot: 11, ConfirmationStatus: solana.CommitmentFinalized, Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}})

	l := newTestLedger(rpc, nil)
	ctx := context.Background()

	st, err := l.SignatureStatus(ctx, "ok")
	require.NoError(t, err)
	assert.True(t, st.Found)
	assert.True(t, st.Landed)
	assert.Nil(t, st.Err)

	st, err = l.SignatureStatus(ctx, "processing")
	require.NoError(t, err)
	assert.True(t, st.Found)
	assert.False(t, st.Landed)

	st, err = l.SignatureStatus(ctx, "bad")
	require.NoError(t, err)
	require.NotNil(t, st.Err)
	assert.Equal(t, "bad", st.Err.Signature)
	assert.Contains(t, st.Err.Detail, "InstructionError")

	st, err = l.SignatureStatus(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, st.Found)
}

func TestRPC_Confirm_Polling(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeight = 100
	calls := 0
	rpc.OnBlockHeight = func(c *stub.RPCClient) {
		calls++
		if calls == 3 {
			c.Statuses["sig"] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
		}
	}

	err := newTestLedger(rpc, nil).Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 200})
	assert.NoError(t, err)
}

func TestRPC_Confirm_ExecutionError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("sig", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed, Err: "InsufficientFundsForRent"})

	err := newTestLedger(rpc, nil).Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 200})

	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "sig", execErr.Signature)
}

func TestRPC_Confirm_Expired(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeight = 200
	rpc.OnBlockHeight = func(c *stub.RPCClient) { c.BlockHeight++ }

	err := newTestLedger(rpc, nil).Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 202})
	assert.ErrorIs(t, err, ErrCheckpointExpired)
}

func TestRPC_Confirm_SeenButNotExpired(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeight = 300
	rpc.SetStatus("sig", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentProcessed})
	calls := 0
	rpc.OnBlockHeight = func(c *stub.RPCClient) {
		calls++
		if calls == 2 {
			c.Statuses["sig"] = &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentConfirmed}
		}
	}

	err := newTestLedger(rpc, nil).Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 250})
	assert.NoError(t, err)
}

func TestRPC_Confirm_ContextCancelled(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeight = 1

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	err := newTestLedger(rpc, nil).Confirm(ctx, "sig", Checkpoint{LastValidBlockHeight: 1000})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRPC_Confirm_WebSocketNotification(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeight = 1

	ws := &fakeWS{ch: make(chan solana.SignatureNotification, 1)}
	ws.ch <- solana.SignatureNotification{Slot: 5}

	l := NewRPC(rpc, RPCOptions{PollInterval: time.Hour, WS: ws, Logger: quietLogger()})

	err := l.Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 1000})
	require.NoError(t, err)
	assert.True(t, ws.unsubscribed)
}

func TestRPC_Confirm_WebSocketExecutionError(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.BlockHeight = 1

	ws := &fakeWS{ch: make(chan solana.SignatureNotification, 1)}
	ws.ch <- solana.SignatureNotification{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}

	l := NewRPC(rpc, RPCOptions{PollInterval: time.Hour, WS: ws, Logger: quietLogger()})

	err := l.Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 1000})
	var execErr *ExecutionError
	assert.ErrorAs(t, err, &execErr)
}

func TestRPC_Confirm_SubscribeFailureFallsBackToPolling(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.SetStatus("sig", &solana.SignatureStatus{ConfirmationStatus: solana.CommitmentFinalized})

	ws := &fakeWS{err: errors.New("ws down")}

	err := newTestLedger(rpc, ws).Confirm(context.Background(), "sig", Checkpoint{LastValidBlockHeight: 10})
	assert.NoError(t, err)
}

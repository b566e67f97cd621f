package solana

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

// rpcServer answers every request with the result produced by handle.
func rpcServer(t *testing.T, handle func(req rpcRequest) interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  handle(req),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
}

func TestHTTPClient_GetBalance(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getBalance" {
			t.Errorf("expected method getBalance, got %s", req.Method)
		}
		if len(req.Params) != 2 || req.Params[0] != "payerPubkey" {
			t.Errorf("unexpected params: %v", req.Params)
		}
		cfg, _ := req.Params[1].(map[string]interface{})
		if cfg["commitment"] != CommitmentConfirmed {
			t.Errorf("expected confirmed commitment, got %v", cfg["commitment"])
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 10},
			"value":   uint64(50_000_000_000),
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	balance, err := client.GetBalance(context.Background(), "payerPubkey", CommitmentConfirmed)
	if err != nil {
		t.Fatalf("GetBalance: %v", err)
	}

	if balance != 50_000_000_000 {
		t.Errorf("expected 50 SOL in lamports, got %d", balance)
	}
}

func TestHTTPClient_GetLatestBlockhash(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getLatestBlockhash" {
			t.Errorf("expected method getLatestBlockhash, got %s", req.Method)
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 2792},
			"value": map[string]interface{}{
				"blockhash":            "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
				"lastValidBlockHeight": 3090,
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	bh, err := client.GetLatestBlockhash(context.Background(), CommitmentFinalized)
	if err != nil {
		t.Fatalf("GetLatestBlockhash: %v", err)
	}

	if bh.Blockhash != "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N" {
		t.Errorf("unexpected blockhash %s", bh.Blockhash)
	}
	if bh.LastValidBlockHeight != 3090 {
		t.Errorf("expected lastValidBlockHeight 3090, got %d", bh.LastValidBlockHeight)
	}
	if bh.Slot != 2792 {
		t.Errorf("expected slot 2792, got %d", bh.Slot)
	}
}

func TestHTTPClient_GetLatestBlockhash_Empty(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		return map[string]interface{}{"value": map[string]interface{}{}}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	if _, err := client.GetLatestBlockhash(context.Background(), ""); err == nil {
		t.Fatal("expected error for empty blockhash")
	}
}

func TestHTTPClient_SendTransaction(t *testing.T) {
	raw := []byte{1, 2, 3, 4, 5}

	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "sendTransaction" {
			t.Errorf("expected method sendTransaction, got %s", req.Method)
		}
		if len(req.Params) != 2 {
			t.Errorf("expected 2 params, got %d", len(req.Params))
			return nil
		}
		if req.Params[0] != base64.StdEncoding.EncodeToString(raw) {
			t.Errorf("transaction not base64 encoded: %v", req.Params[0])
		}
		cfg := req.Params[1].(map[string]interface{})
		if cfg["encoding"] != "base64" {
			t.Errorf("expected base64 encoding, got %v", cfg["encoding"])
		}
		if cfg["preflightCommitment"] != CommitmentConfirmed {
			t.Errorf("expected preflightCommitment confirmed, got %v", cfg["preflightCommitment"])
		}
		if _, ok := cfg["skipPreflight"]; ok {
			t.Errorf("skipPreflight should be omitted")
		}
		return "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	sig, err := client.SendTransaction(context.Background(), raw, &SendOpts{PreflightCommitment: CommitmentConfirmed})
	if err != nil {
		t.Fatalf("SendTransaction: %v", err)
	}

	if sig != "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW" {
		t.Errorf("unexpected signature %s", sig)
	}
}

func TestHTTPClient_SendTransaction_EmptyPayload(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:0")

	if _, err := client.SendTransaction(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for empty transaction")
	}
}

func TestHTTPClient_GetSignatureStatuses(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getSignatureStatuses" {
			t.Errorf("expected method getSignatureStatuses, got %s", req.Method)
		}
		if len(req.Params) != 2 {
			t.Errorf("expected searchTransactionHistory config, got %v", req.Params)
			return nil
		}
		cfg := req.Params[1].(map[string]interface{})
		if cfg["searchTransactionHistory"] != true {
			t.Errorf("expected searchTransactionHistory=true")
		}
		return map[string]interface{}{
			"context": map[string]interface{}{"slot": 82},
			"value": []interface{}{
				map[string]interface{}{
					"slot":               72,
					"confirmations":      10,
					"err":                nil,
					"confirmationStatus": "confirmed",
				},
				nil,
				map[string]interface{}{
					"slot":               48,
					"confirmations":      nil,
					"err":                map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}},
					"confirmationStatus": "finalized",
				},
			},
		}
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	statuses, err := client.GetSignatureStatuses(context.Background(), []string{"a", "b", "c"}, true)
	if err != nil {
		t.Fatalf("GetSignatureStatuses: %v", err)
	}

	if len(statuses) != 3 {
		t.Fatalf("expected 3 statuses, got %d", len(statuses))
	}

	if statuses[0] == nil || statuses[0].Slot != 72 || !statuses[0].Reached(CommitmentConfirmed) {
		t.Errorf("unexpected first status: %+v", statuses[0])
	}
	if statuses[0].Confirmations == nil || *statuses[0].Confirmations != 10 {
		t.Errorf("expected 10 confirmations")
	}
	if statuses[1] != nil {
		t.Errorf("expected nil for unknown signature, got %+v", statuses[1])
	}
	if statuses[2] == nil || statuses[2].Err == nil {
		t.Errorf("expected execution error on third status")
	}
	if statuses[2].Confirmations != nil {
		t.Errorf("expected nil confirmations for rooted status")
	}
}

func TestHTTPClient_GetBlockHeight(t *testing.T) {
	server := rpcServer(t, func(req rpcRequest) interface{} {
		if req.Method != "getBlockHeight" {
			t.Errorf("expected method getBlockHeight, got %s", req.Method)
		}
		return uint64(1233)
	})
	defer server.Close()

	client := NewHTTPClient(server.URL)

	height, err := client.GetBlockHeight(context.Background(), "")
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}

	if height != 1233 {
		t.Errorf("expected height 1233, got %d", height)
	}
}

func TestHTTPClient_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  uint64(999),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(3),
		WithRetryDelay(10*time.Millisecond),
	)

	height, err := client.GetBlockHeight(context.Background(), "")
	if err != nil {
		t.Fatalf("GetBlockHeight: %v", err)
	}

	if height != 999 {
		t.Errorf("expected height 999, got %d", height)
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RetryExhausted(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(time.Millisecond),
	)

	if _, err := client.GetBlockHeight(context.Background(), ""); err == nil {
		t.Fatal("expected error after retries")
	}

	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestHTTPClient_RPCError(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		var req rpcRequest
		json.NewDecoder(r.Body).Decode(&req)

		resp := map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error": map[string]interface{}{
				"code":    -32002,
				"message": "Transaction simulation failed: Blockhash not found",
			},
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, WithRetryDelay(time.Millisecond))

	_, err := client.SendTransaction(context.Background(), []byte{1}, nil)
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %T", err)
	}

	if rpcErr.Code != -32002 {
		t.Errorf("expected code -32002, got %d", rpcErr.Code)
	}

	if attempts.Load() != 1 {
		t.Errorf("RPC errors must not be retried, got %d attempts", attempts.Load())
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	_, err := client.GetBlockHeight(ctx, "")
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
}

func TestSignatureStatus_Reached(t *testing.T) {
	tests := []struct {
		status string
		want   string
		ok     bool
	}{
		{CommitmentProcessed, CommitmentConfirmed, false},
		{CommitmentConfirmed, CommitmentConfirmed, true},
		{CommitmentFinalized, CommitmentConfirmed, true},
		{CommitmentConfirmed, CommitmentFinalized, false},
		{"", CommitmentProcessed, false},
	}

	for _, tt := range tests {
		s := &SignatureStatus{ConfirmationStatus: tt.status}
		if got := s.Reached(tt.want); got != tt.ok {
			t.Errorf("Reached(%q) on %q = %v, want %v", tt.want, tt.status, got, tt.ok)
		}
	}

	var nilStatus *SignatureStatus
	if nilStatus.Reached(CommitmentProcessed) {
		t.Error("nil status must not be reached")
	}
}

package purchase

import (
	"context"
	"fmt"
	"io"
	"log"
	"sync"
	"testing"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"solana-presale/internal/domain"
	"solana-presale/internal/ledger"
	"solana-presale/internal/notify"
	"solana-presale/internal/storage/memory"
	"solana-presale/internal/wallet"
)

func quietLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

// fakeLedger scripts ledger responses per call index.
type fakeLedger struct {
	mu sync.Mutex

	balance    uint64
	balanceErr error

	checkpointErrs []error
	sendErrs       []error
	confirmErrs    []error
	confirmHook    func(sig string)

	statuses  map[string]ledger.SignatureStatus
	statusErr error
	height    uint64

	counts map[string]int
	sent   []string
}

func newFakeLedger(balanceSOL string) *fakeLedger {
	return &fakeLedger{
		balance:  domain.ToLamports(decimal.RequireFromString(balanceSOL)),
		statuses: make(map[string]ledger.SignatureStatus),
		counts:   make(map[string]int),
	}
}

func (f *fakeLedger) next(method string) int {
	n := f.counts[method]
	f.counts[method]++
	return n
}

func errAt(errs []error, n int) error {
	if n < len(errs) {
		return errs[n]
	}
	return nil
}

func (f *fakeLedger) GetBalance(_ context.Context, _ string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next("balance")
	if f.balanceErr != nil {
		return 0, f.balanceErr
	}
	return f.balance, nil
}

func (f *fakeLedger) FetchRecentCheckpoint(_ context.Context) (ledger.Checkpoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.next("checkpoint")
	if err := errAt(f.checkpointErrs, n); err != nil {
		return ledger.Checkpoint{}, err
	}
	return ledger.Checkpoint{
		Blockhash:            solanago.Hash{byte(n + 1)}.String(),
		LastValidBlockHeight: uint64(150 + n),
	}, nil
}

func (f *fakeLedger) SendTransaction(_ context.Context, raw []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.next("send")
	if err := errAt(f.sendErrs, n); err != nil {
		return "", err
	}
	sig := fmt.Sprintf("sig-%d", n+1)
	f.sent = append(f.sent, sig)
	return sig, nil
}

func (f *fakeLedger) Confirm(_ context.Context, sig string, _ ledger.Checkpoint) error {
	f.mu.Lock()
	n := f.next("confirm")
	hook := f.confirmHook
	err := errAt(f.confirmErrs, n)
	f.mu.Unlock()

	if hook != nil {
		hook(sig)
	}
	return err
}

func (f *fakeLedger) SignatureStatus(_ context.Context, sig string) (ledger.SignatureStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next("status")
	if f.statusErr != nil {
		return ledger.SignatureStatus{}, f.statusErr
	}
	return f.statuses[sig], nil
}

func (f *fakeLedger) BlockHeight(_ context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next("height")
	return f.height, nil
}

func (f *fakeLedger) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[method]
}

// networkCalls counts every call except balance reads.
func (f *fakeLedger) networkCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for method, n := range f.counts {
		if method != "balance" {
			total += n
		}
	}
	return total
}

// fakeSigner forwards to the sender unless an error is scripted for the call.
type fakeSigner struct {
	mu sync.Mutex

	key       solanago.PublicKey
	connected bool
	signErrs  []error
	calls     int
	lastTx    *solanago.Transaction

	reconnects   int
	reconnectErr error

	entered chan struct{} // signalled on each SignAndSend, if set
	block   chan struct{} // SignAndSend waits on it, if set

	events *wallet.Broadcaster
}

func newFakeSigner(t *testing.T) *fakeSigner {
	t.Helper()
	key, err := solanago.NewRandomPrivateKey()
	require.NoError(t, err)
	return &fakeSigner{
		key:       key.PublicKey(),
		connected: true,
		events:    wallet.NewBroadcaster(),
	}
}

func (s *fakeSigner) Connect(_ context.Context) (solanago.PublicKey, error) {
	s.mu.Lock()
	s.connected = true
	s.mu.Unlock()
	s.events.Publish(wallet.Event{Kind: wallet.EventConnect, Identity: s.key})
	return s.key, nil
}

func (s *fakeSigner) Disconnect() error {
	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()
	s.events.Publish(wallet.Event{Kind: wallet.EventDisconnect, Identity: s.key})
	return nil
}

func (s *fakeSigner) Reconnect(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	if s.reconnectErr != nil {
		return s.reconnectErr
	}
	s.connected = true
	return nil
}

func (s *fakeSigner) Identity() (solanago.PublicKey, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.key, s.connected
}

func (s *fakeSigner) SignAndSend(ctx context.Context, tx *solanago.Transaction, sender wallet.Sender) (string, error) {
	s.mu.Lock()
	n := s.calls
	s.calls++
	s.lastTx = tx
	entered, block := s.entered, s.block
	err := errAt(s.signErrs, n)
	s.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return "", err
	}
	return sender.SendTransaction(ctx, []byte{byte(n)})
}

func (s *fakeSigner) Subscribe() (<-chan wallet.Event, func()) {
	return s.events.Subscribe()
}

func (s *fakeSigner) signCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// harness wires a submitter around the fakes.
type harness struct {
	ledger   *fakeLedger
	signer   *fakeSigner
	history  *memory.HistoryStore
	attempts *memory.AttemptLog
	feed     *notify.Feed
	session  *Session
	sub      *Submitter

	sleepMu sync.Mutex
	sleeps  []time.Duration
}

const testTreasury = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"

func newHarness(t *testing.T, balanceSOL string) *harness {
	t.Helper()

	h := &harness{
		ledger:   newFakeLedger(balanceSOL),
		signer:   newFakeSigner(t),
		history:  memory.NewHistoryStore(),
		attempts: memory.NewAttemptLog(),
		feed:     notify.NewFeed(50),
	}

	tracker := NewBalanceTracker(h.ledger, h.signer, BalanceTrackerOptions{
		Notifier: h.feed,
		Logger:   quietLogger(),
	})
	require.NoError(t, tracker.Refresh(context.Background()))
	h.session = NewSession(h.signer, tracker)

	sub, err := NewSubmitter(domain.SaleConfig{
		Treasury:            testTreasury,
		UnitPrice:           decimal.RequireFromString("0.0375"),
		RemainingAllocation: decimal.NewFromInt(1_000_000),
	}, h.ledger, h.history, Options{
		Attempts: h.attempts,
		Notifier: h.feed,
		Logger:   quietLogger(),
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.sleepMu.Lock()
			h.sleeps = append(h.sleeps, d)
			h.sleepMu.Unlock()
			return ctx.Err()
		},
		NewRequestID: func() string { return "req-1" },
	})
	require.NoError(t, err)
	h.sub = sub

	return h
}

func (h *harness) records(t *testing.T) []*domain.SubmissionRecord {
	t.Helper()
	records, err := h.history.LoadAll(context.Background())
	require.NoError(t, err)
	return records
}

package purchase

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"solana-presale/internal/domain"
	"solana-presale/internal/ledger"
	"solana-presale/internal/notify"
	"solana-presale/internal/observability"
	"solana-presale/internal/wallet"
)

// Balance refresh interval bounds.
const (
	DefaultBalanceRefreshInterval = 20 * time.Second
	MinBalanceRefreshInterval     = 15 * time.Second
	MaxBalanceRefreshInterval     = 30 * time.Second
)

// BalanceTrackerOptions configures a BalanceTracker.
type BalanceTrackerOptions struct {
	// Interval between timed refreshes. Zero uses DefaultBalanceRefreshInterval.
	Interval time.Duration
	// Notifier receives one notification per failed refresh.
	Notifier notify.Notifier
	// Logger for diagnostics. Nil uses log.Default().
	Logger *log.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// BalanceSnapshot is the cached balance as seen by readers.
type BalanceSnapshot struct {
	Owner       string
	Lamports    uint64
	Valid       bool
	RefreshedAt time.Time
}

// SOL returns the snapshot balance in SOL.
func (s BalanceSnapshot) SOL() decimal.Decimal {
	return domain.FromLamports(s.Lamports)
}

// BalanceTracker caches the connected identity's spendable balance.
// A failed refresh keeps the previous value.
type BalanceTracker struct {
	ledger   ledger.Client
	signer   wallet.Signer
	interval time.Duration
	notifier notify.Notifier
	logger   *log.Logger
	now      func() time.Time

	mu   sync.RWMutex
	snap BalanceSnapshot
}

// NewBalanceTracker creates a tracker with an empty cache.
func NewBalanceTracker(l ledger.Client, s wallet.Signer, opts BalanceTrackerOptions) *BalanceTracker {
	if opts.Interval <= 0 {
		opts.Interval = DefaultBalanceRefreshInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BalanceTracker{
		ledger:   l,
		signer:   s,
		interval: opts.Interval,
		notifier: opts.Notifier,
		logger:   opts.Logger,
		now:      opts.Now,
	}
}

// Snapshot returns the cached balance.
func (b *BalanceTracker) Snapshot() BalanceSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.snap
}

// Cached returns the cached lamports for owner; ok is false if none is cached for it.
func (b *BalanceTracker) Cached(owner string) (lamports uint64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if !b.snap.Valid || b.snap.Owner != owner {
		return 0, false
	}
	return b.snap.Lamports, true
}

// Clear drops the cached value.
func (b *BalanceTracker) Clear() {
	b.mu.Lock()
	b.snap = BalanceSnapshot{}
	b.mu.Unlock()
}

// Refresh reads the balance of the connected identity from the ledger.
func (b *BalanceTracker) Refresh(ctx context.Context) error {
	identity, ok := b.signer.Identity()
	if !ok {
		b.Clear()
		return ErrNotConnected
	}
	owner := identity.String()

	lamports, err := b.ledger.GetBalance(ctx, owner)
	observability.RecordBalanceRefresh(lamports, err)
	if err != nil {
		err = fmt.Errorf("refresh balance: %w", err)
		b.logger.Printf("[balance] %v", err)
		b.notifier.Notify(notify.Notification{
			Level:   notify.LevelWarn,
			Source:  "balance",
			Message: err.Error(),
		})
		return err
	}

	b.mu.Lock()
	b.snap = BalanceSnapshot{
		Owner:       owner,
		Lamports:    lamports,
		Valid:       true,
		RefreshedAt: b.now().UTC(),
	}
	b.mu.Unlock()
	return nil
}

// Run refreshes on a timer and on connect events, and clears on disconnect.
// It blocks until ctx is cancelled.
func (b *BalanceTracker) Run(ctx context.Context) {
	events, release := b.signer.Subscribe()
	defer release()

	if _, ok := b.signer.Identity(); ok {
		_ = b.Refresh(ctx)
	}

	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			switch ev.Kind {
			case wallet.EventConnect:
				_ = b.Refresh(ctx)
			case wallet.EventDisconnect:
				b.Clear()
			}
		case <-ticker.C:
			if _, ok := b.signer.Identity(); ok {
				_ = b.Refresh(ctx)
			}
		}
	}
}

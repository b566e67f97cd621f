package purchase

import (
	"context"
	"fmt"
	"log"
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/ledger"
	"solana-presale/internal/notify"
	"solana-presale/internal/observability"
	"solana-presale/internal/storage"
)

// DefaultReconcileInterval is the period between reconciliation passes.
const DefaultReconcileInterval = time.Minute

// ReconcilerOptions configures a Reconciler.
type ReconcilerOptions struct {
	Interval time.Duration
	Notifier notify.Notifier
	Logger   *log.Logger
}

// ReconcileResult counts the outcome of one pass.
type ReconcileResult struct {
	Checked   int
	Confirmed int
	Failed    int
	Pending   int
}

// Reconciler resolves pending records against ledger state.
type Reconciler struct {
	ledger   ledger.Client
	history  storage.HistoryStore
	interval time.Duration
	notifier notify.Notifier
	logger   *log.Logger
}

// NewReconciler creates a Reconciler.
func NewReconciler(l ledger.Client, history storage.HistoryStore, opts ReconcilerOptions) *Reconciler {
	if opts.Interval <= 0 {
		opts.Interval = DefaultReconcileInterval
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Discard{}
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	return &Reconciler{
		ledger:   l,
		history:  history,
		interval: opts.Interval,
		notifier: opts.Notifier,
		logger:   opts.Logger,
	}
}

// ReconcilePending checks every pending record once:
// landed OK becomes confirmed, landed with an error becomes failed,
// unknown past its expiry height becomes failed, anything else stays pending.
func (r *Reconciler) ReconcilePending(ctx context.Context) (ReconcileResult, error) {
	var result ReconcileResult

	records, err := r.history.ListByStatus(ctx, domain.StatusPending)
	if err != nil {
		return result, fmt.Errorf("list pending: %w", err)
	}
	if len(records) == 0 {
		return result, nil
	}

	// fetched at most once per pass
	var height uint64
	heightKnown := false

	for _, rec := range records {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		result.Checked++

		st, err := r.ledger.SignatureStatus(ctx, rec.SubmissionID)
		if err != nil {
			r.logger.Printf("[reconcile] status %s: %v", rec.SubmissionID, err)
			result.Pending++
			continue
		}

		next := domain.StatusPending
		switch {
		case st.Err != nil:
			next = domain.StatusFailed
		case st.Landed:
			next = domain.StatusConfirmed
		case !st.Found:
			if !heightKnown {
				height, err = r.ledger.BlockHeight(ctx)
				if err != nil {
					r.logger.Printf("[reconcile] block height: %v", err)
					result.Pending++
					continue
				}
				heightKnown = true
			}
			if rec.ExpiryHeight > 0 && height > rec.ExpiryHeight {
				next = domain.StatusFailed
			}
		}

		if next == domain.StatusPending {
			result.Pending++
			continue
		}

		if err := r.history.UpdateStatus(ctx, rec.SubmissionID, next); err != nil {
			r.logger.Printf("[reconcile] update %s: %v", rec.SubmissionID, err)
			result.Pending++
			continue
		}
		observability.RecordReconciled(next.String())

		if next == domain.StatusConfirmed {
			result.Confirmed++
		} else {
			result.Failed++
		}
		r.notifier.Notify(notify.Notification{
			Level:   notify.LevelInfo,
			Source:  "reconcile",
			Message: fmt.Sprintf("submission %s resolved as %s", rec.SubmissionID, next),
		})
	}

	return result, nil
}

// Run reconciles once immediately and then every interval until ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	r.pass(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.pass(ctx)
		}
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	res, err := r.ReconcilePending(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.logger.Printf("[reconcile] pass failed: %v", err)
		}
		return
	}
	if res.Checked > 0 {
		r.logger.Printf("[reconcile] checked=%d confirmed=%d failed=%d pending=%d",
			res.Checked, res.Confirmed, res.Failed, res.Pending)
	}
}

// Package purchase implements the presale purchase workflow: pre-flight checks,
// the bounded-retry submission loop, balance caching and pending-record reconciliation.
package purchase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"solana-presale/internal/domain"
	"solana-presale/internal/idhash"
	"solana-presale/internal/ledger"
	"solana-presale/internal/notify"
	"solana-presale/internal/observability"
	"solana-presale/internal/storage"
	"solana-presale/internal/wallet"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = 1 * time.Second
)

// Options configures a Submitter.
type Options struct {
	// MaxAttempts bounds the submission loop. Zero uses DefaultMaxAttempts.
	MaxAttempts int
	// RetryDelay is the linear backoff unit: attempt n waits n*RetryDelay.
	RetryDelay time.Duration
	// Attempts receives an audit event per stage; nil disables the audit log.
	Attempts storage.AttemptLog
	// Notifier receives every surfaced error and each confirmation.
	Notifier notify.Notifier
	// Logger for diagnostics. Nil uses log.Default().
	Logger *log.Logger

	// Test hooks.
	Now          func() time.Time
	Sleep        func(ctx context.Context, d time.Duration) error
	NewRequestID func() string
}

// Submitter turns purchase requests into confirmed transfers to the sale treasury.
type Submitter struct {
	sale     domain.SaleConfig
	treasury solanago.PublicKey
	ledger   ledger.Client
	history  storage.HistoryStore

	maxAttempts int
	retryDelay  time.Duration
	attempts    storage.AttemptLog
	notifier    notify.Notifier
	logger      *log.Logger
	now         func() time.Time
	sleep       func(ctx context.Context, d time.Duration) error
	newID       func() string
}

// NewSubmitter validates the sale configuration and creates a Submitter.
func NewSubmitter(sale domain.SaleConfig, l ledger.Client, history storage.HistoryStore, opts Options) (*Submitter, error) {
	treasury, err := wallet.ParseAddress(sale.Treasury)
	if err != nil {
		return nil, fmt.Errorf("treasury address: %w", err)
	}
	if !sale.UnitPrice.IsPositive() {
		return nil, fmt.Errorf("unit price must be positive, got %s", sale.UnitPrice)
	}
	if sale.RemainingAllocation.IsNegative() {
		return nil, fmt.Errorf("remaining allocation must not be negative, got %s", sale.RemainingAllocation)
	}

	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = 0
	} else if opts.RetryDelay == 0 {
		opts.RetryDelay = DefaultRetryDelay
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
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.NewRequestID == nil {
		opts.NewRequestID = uuid.NewString
	}

	return &Submitter{
		sale:        sale,
		treasury:    treasury,
		ledger:      l,
		history:     history,
		maxAttempts: opts.MaxAttempts,
		retryDelay:  opts.RetryDelay,
		attempts:    opts.Attempts,
		notifier:    opts.Notifier,
		logger:      opts.Logger,
		now:         opts.Now,
		sleep:       opts.Sleep,
		newID:       opts.NewRequestID,
	}, nil
}

// Sale returns the sale configuration.
func (s *Submitter) Sale() domain.SaleConfig {
	return s.sale
}

// Submit buys tokenAmount tokens for the session's connected wallet and returns
// the confirmed submission id.
func (s *Submitter) Submit(ctx context.Context, sess *Session, tokenAmount decimal.Decimal) (string, error) {
	req, err := s.preflight(sess, tokenAmount)
	if err != nil {
		observability.RecordPurchaseRejected(rejectReason(err))
		return "", s.surface(err)
	}

	if !sess.acquire() {
		observability.RecordPurchaseRejected("in_flight")
		return "", s.surface(ErrPurchaseInFlight)
	}
	defer sess.release()

	done := observability.IncInFlight()
	defer done()

	start := s.now()
	id, err := s.run(ctx, sess, req)
	elapsed := s.now().Sub(start).Seconds()

	if err != nil {
		observability.RecordPurchase(failOutcome(err), elapsed)
		return "", s.surface(err)
	}

	observability.RecordPurchase("confirmed", elapsed)
	observability.RecordTokensSold(req.TokenAmount.InexactFloat64())
	s.notifier.Notify(notify.Notification{
		Level:   notify.LevelInfo,
		Source:  "purchase",
		Message: fmt.Sprintf("purchase of %s tokens confirmed: %s", req.TokenAmount, id),
	})

	// refresh failures are reported by the tracker itself
	if sess.Balance != nil {
		_ = sess.Balance.Refresh(ctx)
	}
	return id, nil
}

// preflight applies the local checks in order; no network access.
func (s *Submitter) preflight(sess *Session, tokenAmount decimal.Decimal) (domain.PurchaseRequest, error) {
	if sess == nil || sess.Signer == nil {
		return domain.PurchaseRequest{}, ErrNotConnected
	}
	payer, ok := sess.Payer()
	if !ok {
		return domain.PurchaseRequest{}, ErrNotConnected
	}

	if !tokenAmount.IsPositive() || !tokenAmount.IsInteger() {
		return domain.PurchaseRequest{}, fmt.Errorf("%w: %s", ErrInvalidAmount, tokenAmount)
	}

	req := domain.PurchaseRequest{
		RequestID:   s.newID(),
		TokenAmount: tokenAmount,
		UnitPrice:   s.sale.UnitPrice,
		Payer:       payer,
		Payee:       s.treasury.String(),
	}

	var cached uint64
	if sess.Balance != nil {
		cached, _ = sess.Balance.Cached(payer)
	}
	cost := req.Cost()
	if cost.GreaterThan(domain.FromLamports(cached)) {
		return domain.PurchaseRequest{}, fmt.Errorf("%w: cost %s SOL, balance %s SOL",
			ErrInsufficientFunds, cost, domain.FromLamports(cached))
	}

	if tokenAmount.GreaterThan(s.sale.RemainingAllocation) {
		return domain.PurchaseRequest{}, fmt.Errorf("%w: %s > %s",
			ErrAllocationExceeded, tokenAmount, s.sale.RemainingAllocation)
	}

	return req, nil
}

// attemptResult describes what one pass of the loop reached.
type attemptResult struct {
	signature string // set once the network accepted the broadcast
	recorded  bool   // set once the pending record was appended
}

// run is the bounded-retry loop. Each attempt fetches a fresh checkpoint.
func (s *Submitter) run(ctx context.Context, sess *Session, req domain.PurchaseRequest) (string, error) {
	payer, err := wallet.ParseAddress(req.Payer)
	if err != nil {
		return "", fmt.Errorf("%w: payer: %w", ErrSubmissionFailed, err)
	}
	lamports := req.CostLamports()

	var (
		lastErr      error
		lastRecorded attemptResult // most recent recorded broadcast
	)
	for attempt := 1; ; attempt++ {
		res, err := s.attempt(ctx, sess, req, payer, lamports, attempt)
		if err == nil {
			return res.signature, nil
		}
		lastErr = err
		if res.recorded {
			lastRecorded = res
		}
		s.logger.Printf("[purchase] request %s attempt %d/%d: %v", req.RequestID, attempt, s.maxAttempts, err)

		if errors.Is(err, wallet.ErrRejected) {
			return "", fmt.Errorf("%w: %w", ErrSignerRejected, err)
		}

		var execErr *ledger.ExecutionError
		if errors.As(err, &execErr) {
			s.markStatus(ctx, res, domain.StatusFailed)
			return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}

		if ctx.Err() != nil {
			// an appended record stays pending for the reconciler
			return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, ctx.Err())
		}

		if res.signature != "" {
			id, resolved, err := s.dedup(ctx, req, attempt, res)
			if resolved {
				return id, err
			}
		}

		if attempt >= s.maxAttempts {
			if res.signature == "" && lastRecorded.recorded {
				// the final attempt never broadcast; settle the latest record instead
				id, resolved, err := s.dedup(ctx, req, attempt, lastRecorded)
				if resolved {
					return id, err
				}
			}
			s.markStatus(ctx, lastRecorded, domain.StatusFailed)
			return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, lastErr)
		}

		if errors.Is(err, wallet.ErrDisconnected) || errors.Is(err, wallet.ErrNotConnected) {
			if rerr := sess.Signer.Reconnect(ctx); rerr != nil {
				s.logger.Printf("[purchase] reconnect: %v", rerr)
			}
		}

		if err := s.sleep(ctx, time.Duration(attempt)*s.retryDelay); err != nil {
			return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
		}
	}
}

// attempt runs checkpoint, build, sign-and-send, record and confirm once.
func (s *Submitter) attempt(
	ctx context.Context,
	sess *Session,
	req domain.PurchaseRequest,
	payer solanago.PublicKey,
	lamports uint64,
	attempt int,
) (attemptResult, error) {
	var res attemptResult

	cp, err := s.ledger.FetchRecentCheckpoint(ctx)
	s.audit(ctx, req, attempt, domain.StageCheckpoint, "", err)
	if err != nil {
		return res, err
	}

	tx, err := buildTransfer(payer, s.treasury, lamports, cp)
	if err != nil {
		return res, err
	}

	sig, err := sess.Signer.SignAndSend(ctx, tx, s.ledger)
	s.audit(ctx, req, attempt, domain.StageSend, sig, err)
	if err != nil {
		return res, err
	}
	res.signature = sig

	now := s.now().UTC()
	record := &domain.SubmissionRecord{
		SubmissionID: sig,
		RequestID:    req.RequestID,
		Payer:        req.Payer,
		Payee:        req.Payee,
		Amount:       req.TokenAmount,
		Cost:         req.Cost(),
		CostLamports: lamports,
		Checkpoint:   cp.Blockhash,
		ExpiryHeight: cp.LastValidBlockHeight,
		Attempt:      attempt,
		Status:       domain.StatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.history.Append(ctx, record); err != nil {
		// the transfer is already broadcast; keep tracking it
		s.logger.Printf("[purchase] append %s: %v", sig, err)
	} else {
		res.recorded = true
	}

	err = s.ledger.Confirm(ctx, sig, cp)
	s.audit(ctx, req, attempt, domain.StageConfirm, sig, err)
	if err != nil {
		return res, err
	}

	s.markStatus(ctx, res, domain.StatusConfirmed)
	return res, nil
}

// dedup asks the ledger whether an earlier broadcast landed before retrying.
// resolved is true when the loop must stop with (id, err).
func (s *Submitter) dedup(ctx context.Context, req domain.PurchaseRequest, attempt int, res attemptResult) (id string, resolved bool, err error) {
	st, err := s.ledger.SignatureStatus(ctx, res.signature)
	s.audit(ctx, req, attempt, domain.StageDedup, res.signature, err)
	if err != nil {
		s.logger.Printf("[purchase] dedup %s: %v", res.signature, err)
		return "", false, nil
	}

	switch {
	case st.Err != nil:
		s.markStatus(ctx, res, domain.StatusFailed)
		return "", true, fmt.Errorf("%w: %w", ErrSubmissionFailed, st.Err)
	case st.Landed:
		s.logger.Printf("[purchase] %s landed despite confirm error, not rebroadcasting", res.signature)
		s.markStatus(ctx, res, domain.StatusConfirmed)
		return res.signature, true, nil
	default:
		return "", false, nil
	}
}

func (s *Submitter) markStatus(ctx context.Context, res attemptResult, status domain.SubmissionStatus) {
	if !res.recorded {
		return
	}
	// a cancelled caller must not prevent the terminal write
	if err := s.history.UpdateStatus(context.WithoutCancel(ctx), res.signature, status); err != nil {
		s.logger.Printf("[purchase] mark %s %s: %v", res.signature, status, err)
	}
}

// audit writes a stage event to the attempt log, if configured.
func (s *Submitter) audit(ctx context.Context, req domain.PurchaseRequest, attempt int, stage domain.AttemptStage, sig string, stageErr error) {
	outcome := domain.OutcomeOK
	msg := ""
	if stageErr != nil {
		outcome = domain.OutcomeError
		msg = stageErr.Error()
	}
	observability.RecordAttemptStage(string(stage), string(outcome))

	if s.attempts == nil {
		return
	}
	event := &domain.AttemptEvent{
		AttemptID:    idhash.ComputeAttemptID(req.RequestID, attempt, stage, outcome),
		RequestID:    req.RequestID,
		Payer:        req.Payer,
		Attempt:      attempt,
		Stage:        stage,
		Outcome:      outcome,
		SubmissionID: sig,
		Error:        msg,
		OccurredAt:   s.now().UTC(),
	}
	if err := s.attempts.Insert(context.WithoutCancel(ctx), event); err != nil {
		s.logger.Printf("[purchase] audit %s/%d/%s: %v", req.RequestID, attempt, stage, err)
	}
}

// surface reports err to the notifier and returns it.
func (s *Submitter) surface(err error) error {
	s.notifier.Notify(notify.Notification{
		Level:   notify.LevelError,
		Source:  "purchase",
		Message: err.Error(),
	})
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotConnected):
		return "not_connected"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ErrAllocationExceeded):
		return "allocation_exceeded"
	default:
		return "rejected"
	}
}

func failOutcome(err error) string {
	switch {
	case errors.Is(err, ErrSignerRejected):
		return "signer_rejected"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failed"
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

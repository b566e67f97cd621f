package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"solana-presale/internal/domain"
	"solana-presale/internal/notify"
	"solana-presale/internal/purchase"
	"solana-presale/internal/storage"
)

// WalletResponse describes the session's signer.
type WalletResponse struct {
	Connected bool   `json:"connected"`
	Identity  string `json:"identity,omitempty"`
	InFlight  bool   `json:"in_flight"`
}

func (s *Server) walletResponse() WalletResponse {
	payer, ok := s.session.Payer()
	return WalletResponse{
		Connected: ok,
		Identity:  payer,
		InFlight:  s.session.InFlight(),
	}
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.walletResponse())
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if _, err := s.session.Signer.Connect(r.Context()); err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("connect wallet: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.walletResponse())
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Signer.Disconnect(); err != nil {
		s.writeError(w, http.StatusBadGateway, fmt.Errorf("disconnect wallet: %w", err))
		return
	}
	s.writeJSON(w, http.StatusOK, s.walletResponse())
}

// BalanceResponse is the cached spendable balance.
type BalanceResponse struct {
	Owner       string          `json:"owner,omitempty"`
	Lamports    uint64          `json:"lamports"`
	SOL         decimal.Decimal `json:"sol"`
	Valid       bool            `json:"valid"`
	RefreshedAt *time.Time      `json:"refreshed_at,omitempty"`
}

// handleBalance returns the cached balance; ?refresh=true reads the ledger first.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.session.Payer(); !ok {
		s.writeError(w, http.StatusConflict, purchase.ErrNotConnected)
		return
	}

	if refresh, _ := strconv.ParseBool(r.URL.Query().Get("refresh")); refresh {
		if err := s.session.Balance.Refresh(r.Context()); err != nil {
			s.writeError(w, http.StatusBadGateway, err)
			return
		}
	}

	snap := s.session.Balance.Snapshot()
	resp := BalanceResponse{
		Owner:    snap.Owner,
		Lamports: snap.Lamports,
		SOL:      snap.SOL(),
		Valid:    snap.Valid,
	}
	if !snap.RefreshedAt.IsZero() {
		at := snap.RefreshedAt
		resp.RefreshedAt = &at
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// PurchaseRequest is the body of POST /v1/purchases.
// TokenAmount accepts a JSON string or number.
type PurchaseRequest struct {
	TokenAmount decimal.Decimal `json:"token_amount"`
}

// PurchaseResponse is returned for a confirmed purchase.
type PurchaseResponse struct {
	SubmissionID string `json:"submission_id"`
}

func (s *Server) handleCreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req PurchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", purchase.ErrInvalidAmount, err))
		return
	}

	id, err := s.submitter.Submit(r.Context(), s.session, req.TokenAmount)
	if err != nil {
		s.logger.Printf("[api] purchase of %s: %v", req.TokenAmount, err)
		s.writeError(w, statusFor(err), err)
		return
	}
	s.writeJSON(w, http.StatusCreated, PurchaseResponse{SubmissionID: id})
}

// statusFor maps purchase errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, purchase.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, purchase.ErrInvalidAmount):
		return http.StatusBadRequest
	case errors.Is(err, purchase.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, purchase.ErrAllocationExceeded):
		return http.StatusConflict
	case errors.Is(err, purchase.ErrPurchaseInFlight):
		return http.StatusTooManyRequests
	case errors.Is(err, purchase.ErrSignerRejected):
		return http.StatusForbidden
	case errors.Is(err, purchase.ErrSubmissionFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RecordResponse is the JSON form of a SubmissionRecord.
type RecordResponse struct {
	SubmissionID string          `json:"submission_id"`
	RequestID    string          `json:"request_id"`
	Payer        string          `json:"payer"`
	Payee        string          `json:"payee"`
	Amount       decimal.Decimal `json:"amount"`
	Cost         decimal.Decimal `json:"cost"`
	CostLamports uint64          `json:"cost_lamports"`
	Checkpoint   string          `json:"checkpoint"`
	ExpiryHeight uint64          `json:"expiry_height"`
	Attempt      int             `json:"attempt"`
	Status       string          `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func toRecordResponse(r *domain.SubmissionRecord) RecordResponse {
	return RecordResponse{
		SubmissionID: r.SubmissionID,
		RequestID:    r.RequestID,
		Payer:        r.Payer,
		Payee:        r.Payee,
		Amount:       r.Amount,
		Cost:         r.Cost,
		CostLamports: r.CostLamports,
		Checkpoint:   r.Checkpoint,
		ExpiryHeight: r.ExpiryHeight,
		Attempt:      r.Attempt,
		Status:       r.Status.String(),
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (s *Server) handleListPurchases(w http.ResponseWriter, r *http.Request) {
	var (
		records []*domain.SubmissionRecord
		err     error
	)
	if status := domain.SubmissionStatus(r.URL.Query().Get("status")); status != "" {
		if !status.IsValid() {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("unknown status %q", status))
			return
		}
		records, err = s.history.ListByStatus(r.Context(), status)
	} else {
		records, err = s.history.LoadAll(r.Context())
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, fmt.Errorf("load history: %w", err))
		return
	}

	out := make([]RecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toRecordResponse(rec))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetPurchase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rec, err := s.history.Get(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("submission %s not found", id))
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, toRecordResponse(rec))
}

// handleNotifications returns recent notifications, newest first; ?limit=N caps the count.
func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit %q", v))
			return
		}
		limit = n
	}
	items := s.feed.Recent(limit)
	if items == nil {
		items = []notify.Notification{}
	}
	s.writeJSON(w, http.StatusOK, items)
}

// StatusResponse is the JSON response for /status.
type StatusResponse struct {
	Status              string          `json:"status"`
	Uptime              string          `json:"uptime"`
	Started             time.Time       `json:"started"`
	HistoryBackend      string          `json:"history_backend"`
	Connected           bool            `json:"connected"`
	InFlight            bool            `json:"in_flight"`
	PendingSubmissions  int             `json:"pending_submissions"`
	Treasury            string          `json:"treasury"`
	UnitPrice           decimal.Decimal `json:"unit_price"`
	RemainingAllocation decimal.Decimal `json:"remaining_allocation"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sale := s.submitter.Sale()
	resp := StatusResponse{
		Status:              "running",
		Uptime:              s.now().Sub(s.started).Round(time.Second).String(),
		Started:             s.started,
		HistoryBackend:      s.backend,
		InFlight:            s.session.InFlight(),
		Treasury:            sale.Treasury,
		UnitPrice:           sale.UnitPrice,
		RemainingAllocation: sale.RemainingAllocation,
	}
	_, resp.Connected = s.session.Payer()

	pending, err := s.history.ListByStatus(r.Context(), domain.StatusPending)
	if err != nil {
		s.logger.Printf("[api] status: list pending: %v", err)
		resp.Status = "degraded"
	}
	resp.PendingSubmissions = len(pending)

	s.writeJSON(w, http.StatusOK, resp)
}

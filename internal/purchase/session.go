package purchase

import (
	"sync/atomic"

	"github.com/google/uuid"

	"solana-presale/internal/wallet"
)

// Session is the per-user context a purchase runs in.
// At most one purchase may be in flight per session.
type Session struct {
	ID      string
	Signer  wallet.Signer
	Balance *BalanceTracker

	inFlight atomic.Bool
}

// NewSession creates a session around a signer and its balance tracker.
func NewSession(signer wallet.Signer, balance *BalanceTracker) *Session {
	return &Session{
		ID:      uuid.NewString(),
		Signer:  signer,
		Balance: balance,
	}
}

// Payer returns the connected identity in base58.
func (s *Session) Payer() (string, bool) {
	key, ok := s.Signer.Identity()
	if !ok {
		return "", false
	}
	return key.String(), true
}

// InFlight reports whether a purchase is currently running.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

func (s *Session) acquire() bool {
	return s.inFlight.CompareAndSwap(false, true)
}

func (s *Session) release() {
	s.inFlight.Store(false)
}

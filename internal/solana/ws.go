package solana

import (
	"context"
	"sync"
)

// WSClient defines Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSignature subscribes to the confirmation of a single transaction signature.
	// The node delivers at most one notification, after which the channel is closed.
	SubscribeSignature(ctx context.Context, signature, commitment string) (*SignatureSubscription, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SignatureNotification is delivered once the signature reaches the subscribed commitment.
type SignatureNotification struct {
	Slot uint64
	Err  interface{} // nil on success
}

// SignatureSubscription is a live signatureSubscribe registration.
type SignatureSubscription struct {
	C <-chan SignatureNotification

	once   sync.Once
	cancel func()
}

// Unsubscribe releases the subscription. Safe to call more than once.
func (s *SignatureSubscription) Unsubscribe() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// NewSignatureSubscription wraps a notification channel and its release func.
func NewSignatureSubscription(c <-chan SignatureNotification, cancel func()) *SignatureSubscription {
	return &SignatureSubscription{C: c, cancel: cancel}
}

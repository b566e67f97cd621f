package wallet

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"log"
	"sync"

	solanago "github.com/gagliardetto/solana-go"
)

// KeypairSignerOptions configures a KeypairSigner.
type KeypairSignerOptions struct {
	// Gate approves each transaction; nil approves everything.
	Gate Gate
	// Logger for signer events. Nil uses log.Default().
	Logger *log.Logger
}

// KeypairSigner signs with a locally held ed25519 keypair.
type KeypairSigner struct {
	key    solanago.PrivateKey
	pub    solanago.PublicKey
	gate   Gate
	logger *log.Logger
	events *Broadcaster

	mu        sync.RWMutex
	connected bool
}

// NewKeypairSigner creates a disconnected signer for key.
func NewKeypairSigner(key solanago.PrivateKey, opts KeypairSignerOptions) (*KeypairSigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("%w: private key is %d bytes", ErrInvalidKey, len(key))
	}
	pub := key.PublicKey()
	if !IsOnCurve(pub) {
		return nil, fmt.Errorf("%w: public key %s is not on the ed25519 curve", ErrInvalidKey, pub)
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &KeypairSigner{
		key:    key,
		pub:    pub,
		gate:   opts.Gate,
		logger: logger,
		events: NewBroadcaster(),
	}, nil
}

// Compile-time interface check.
var _ Signer = (*KeypairSigner)(nil)

// Connect marks the signer connected and emits a connect event.
// Connecting an already connected signer is a no-op.
func (s *KeypairSigner) Connect(_ context.Context) (solanago.PublicKey, error) {
	s.mu.Lock()
	was := s.connected
	s.connected = true
	s.mu.Unlock()

	if !was {
		s.logger.Printf("[wallet] connected %s", s.pub)
		s.events.Publish(Event{Kind: EventConnect, Identity: s.pub})
	}
	return s.pub, nil
}

// Disconnect marks the signer disconnected and emits a disconnect event.
func (s *KeypairSigner) Disconnect() error {
	s.mu.Lock()
	was := s.connected
	s.connected = false
	s.mu.Unlock()

	if was {
		s.logger.Printf("[wallet] disconnected %s", s.pub)
		s.events.Publish(Event{Kind: EventDisconnect, Identity: s.pub})
	}
	return nil
}

// Reconnect restores the connection after a disconnect.
func (s *KeypairSigner) Reconnect(ctx context.Context) error {
	_, err := s.Connect(ctx)
	return err
}

// Identity returns the public key while connected.
func (s *KeypairSigner) Identity() (solanago.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return solanago.PublicKey{}, false
	}
	return s.pub, true
}

// SignAndSend signs tx and broadcasts it. The fee payer must be this signer.
func (s *KeypairSigner) SignAndSend(ctx context.Context, tx *solanago.Transaction, sender Sender) (string, error) {
	if _, ok := s.Identity(); !ok {
		return "", ErrDisconnected
	}
	if tx == nil || len(tx.Message.AccountKeys) == 0 {
		return "", fmt.Errorf("%w: empty transaction", ErrRejected)
	}
	if payer := tx.Message.AccountKeys[0]; !payer.Equals(s.pub) {
		return "", fmt.Errorf("%w: fee payer %s is not %s", ErrRejected, payer, s.pub)
	}

	if s.gate != nil {
		if err := s.gate(tx); err != nil {
			return "", fmt.Errorf("%w: %v", ErrRejected, err)
		}
	}

	_, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("sign transaction: %w", err)
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	sig, err := sender.SendTransaction(ctx, raw)
	if err != nil {
		return "", err
	}
	return sig, nil
}

// Subscribe returns connect/disconnect notifications.
func (s *KeypairSigner) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// Close releases every subscriber.
func (s *KeypairSigner) Close() {
	s.events.Close()
}

// Package wallet provides transaction signers and the keystore backing them.
package wallet

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
)

// EventKind distinguishes signer notifications.
type EventKind string

const (
	EventConnect    EventKind = "connect"
	EventDisconnect EventKind = "disconnect"
)

// Event is a connect or disconnect notification.
type Event struct {
	Kind     EventKind
	Identity solanago.PublicKey
}

// Sender broadcasts a signed wire-encoded transaction and returns its signature.
type Sender interface {
	SendTransaction(ctx context.Context, raw []byte) (string, error)
}

// Signer authorizes transactions on behalf of a connected identity.
type Signer interface {
	Connect(ctx context.Context) (solanago.PublicKey, error)
	Disconnect() error
	Reconnect(ctx context.Context) error
	// Identity returns the connected public key; ok is false when disconnected.
	Identity() (key solanago.PublicKey, ok bool)
	// SignAndSend signs tx as fee payer and broadcasts it through sender.
	SignAndSend(ctx context.Context, tx *solanago.Transaction, sender Sender) (string, error)
	// Subscribe returns a channel of connect/disconnect events and its release func.
	Subscribe() (<-chan Event, func())
}

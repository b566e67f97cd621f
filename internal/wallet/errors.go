package wallet

import "errors"

// Sentinel errors for signer operations.
var (
	// ErrNotConnected is returned when the signer has no connected identity.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrDisconnected is returned when the signer lost its connection mid-operation.
	ErrDisconnected = errors.New("wallet disconnected")

	// ErrRejected is returned when the signer declines to authorize a transaction.
	ErrRejected = errors.New("signing rejected")

	// ErrKeyNotFound is returned when the keystore has no entry under the key name.
	ErrKeyNotFound = errors.New("keypair not found")

	// ErrInvalidKey is returned for malformed or off-curve keys.
	ErrInvalidKey = errors.New("invalid key")
)

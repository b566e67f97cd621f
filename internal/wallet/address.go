package wallet

import (
	"fmt"

	"filippo.io/edwards25519"
	solanago "github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
)

// ParseAddress decodes a base58 account address of exactly 32 bytes.
// Program derived addresses are accepted.
func ParseAddress(s string) (solanago.PublicKey, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return solanago.PublicKey{}, fmt.Errorf("%w: decode %q: %v", ErrInvalidKey, s, err)
	}
	if len(raw) != solanago.PublicKeyLength {
		return solanago.PublicKey{}, fmt.Errorf("%w: %q is %d bytes, want %d", ErrInvalidKey, s, len(raw), solanago.PublicKeyLength)
	}
	return solanago.PublicKeyFromBytes(raw), nil
}

// IsOnCurve reports whether key is a valid ed25519 point, i.e. can have a private key.
func IsOnCurve(key solanago.PublicKey) bool {
	_, err := new(edwards25519.Point).SetBytes(key[:])
	return err == nil
}

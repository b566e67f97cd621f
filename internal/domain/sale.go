package domain

import (
	"github.com/shopspring/decimal"
)

// LamportsPerSOL is the number of base units in one SOL.
const LamportsPerSOL = 1_000_000_000

// lamportDecimals is the decimal shift between SOL and lamports.
const lamportDecimals = 9

// SaleConfig describes one presale round.
type SaleConfig struct {
	Treasury            string          // base58 treasury address receiving payments
	UnitPrice           decimal.Decimal // SOL per token
	RemainingAllocation decimal.Decimal // tokens still available in this round
}

// Cost returns the SOL cost of tokenAmount tokens.
func (c SaleConfig) Cost(tokenAmount decimal.Decimal) decimal.Decimal {
	return c.UnitPrice.Mul(tokenAmount)
}

// ToLamports converts a SOL amount to lamports, rounding up to a whole lamport.
// Negative amounts convert to zero.
func ToLamports(sol decimal.Decimal) uint64 {
	if !sol.IsPositive() {
		return 0
	}
	return uint64(sol.Shift(lamportDecimals).Ceil().IntPart())
}

// FromLamports converts lamports to SOL.
func FromLamports(lamports uint64) decimal.Decimal {
	return decimal.NewFromUint64(lamports).Shift(-lamportDecimals)
}

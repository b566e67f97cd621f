package purchase

import "errors"

// Purchase errors. Pre-flight errors are returned before any network call.
var (
	// ErrNotConnected is returned when the session has no connected signer.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrInvalidAmount is returned when the token amount is not a positive integer.
	ErrInvalidAmount = errors.New("token amount must be a positive integer")

	// ErrInsufficientFunds is returned when the cost exceeds the cached balance.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAllocationExceeded is returned when the amount exceeds the remaining allocation.
	ErrAllocationExceeded = errors.New("amount exceeds remaining allocation")

	// ErrPurchaseInFlight is returned when the session already has a submission running.
	ErrPurchaseInFlight = errors.New("purchase already in flight")

	// ErrSignerRejected is returned when the signer declined the transaction.
	ErrSignerRejected = errors.New("signer rejected transaction")

	// ErrSubmissionFailed is returned when the submission did not confirm.
	// It is joined with the last underlying error.
	ErrSubmissionFailed = errors.New("submission failed")
)

// IsPreflight reports whether err was raised before any network call.
func IsPreflight(err error) bool {
	return errors.Is(err, ErrNotConnected) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrAllocationExceeded) ||
		errors.Is(err, ErrPurchaseInFlight)
}

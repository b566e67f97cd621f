package solana

// LatestBlockhash from getLatestBlockhash.
type LatestBlockhash struct {
	Slot                 uint64
	Blockhash            string
	LastValidBlockHeight uint64
}

// SignatureStatus from getSignatureStatuses.
type SignatureStatus struct {
	Slot               uint64
	Confirmations      *uint64 // nil once rooted
	Err                interface{}
	ConfirmationStatus string
}

// SendOpts defines optional parameters for sendTransaction.
type SendOpts struct {
	SkipPreflight       bool
	PreflightCommitment string
	MaxRetries          *uint // node-side rebroadcast limit
}

// commitmentRank orders commitment levels; unknown levels rank lowest.
func commitmentRank(level string) int {
	switch level {
	case CommitmentProcessed:
		return 1
	case CommitmentConfirmed:
		return 2
	case CommitmentFinalized:
		return 3
	default:
		return 0
	}
}

// Reached reports whether the status has reached at least the given commitment.
func (s *SignatureStatus) Reached(commitment string) bool {
	if s == nil {
		return false
	}
	return commitmentRank(s.ConfirmationStatus) >= commitmentRank(commitment)
}

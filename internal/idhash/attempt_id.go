package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"solana-presale/internal/domain"
)

// ComputeAttemptID computes a deterministic attempt_id using SHA256.
// Formula: SHA256(request_id|attempt|stage|outcome)
// Returns hex-encoded hash (64 characters).
func ComputeAttemptID(
	requestID string,
	attempt int,
	stage domain.AttemptStage,
	outcome domain.AttemptOutcome,
) string {
	data := fmt.Sprintf("%s|%d|%s|%s",
		requestID,
		attempt,
		string(stage),
		string(outcome),
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

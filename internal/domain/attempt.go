package domain

import "time"

// AttemptStage identifies the step of a submission attempt.
type AttemptStage string

const (
	StageCheckpoint AttemptStage = "checkpoint"
	StageSend       AttemptStage = "send"
	StageConfirm    AttemptStage = "confirm"
	StageDedup      AttemptStage = "dedup"
)

// AttemptOutcome is the result of one stage.
type AttemptOutcome string

const (
	OutcomeOK    AttemptOutcome = "ok"
	OutcomeError AttemptOutcome = "error"
)

// AttemptEvent is an audit entry for a single stage of a submission attempt.
type AttemptEvent struct {
	AttemptID    string // deterministic hash of request, attempt and stage
	RequestID    string
	Payer        string
	Attempt      int
	Stage        AttemptStage
	Outcome      AttemptOutcome
	SubmissionID string // empty before broadcast
	Error        string
	OccurredAt   time.Time
}

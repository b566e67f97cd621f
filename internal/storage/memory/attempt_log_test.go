package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"solana-presale/internal/domain"
	"solana-presale/internal/storage"
)

func TestAttemptLog_InsertAndGet(t *testing.T) {
	log := NewAttemptLog()
	ctx := context.Background()

	events := []*domain.AttemptEvent{
		{AttemptID: "a2", RequestID: "req1", Attempt: 1, Stage: domain.StageSend, Outcome: domain.OutcomeOK, OccurredAt: time.Unix(20, 0)},
		{AttemptID: "a1", RequestID: "req1", Attempt: 1, Stage: domain.StageCheckpoint, Outcome: domain.OutcomeOK, OccurredAt: time.Unix(10, 0)},
		{AttemptID: "b1", RequestID: "req2", Attempt: 1, Stage: domain.StageCheckpoint, Outcome: domain.OutcomeError, OccurredAt: time.Unix(15, 0)},
	}
	for _, e := range events {
		if err := log.Insert(ctx, e); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	got, err := log.GetByRequestID(ctx, "req1")
	if err != nil {
		t.Fatalf("GetByRequestID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].AttemptID != "a1" || got[1].AttemptID != "a2" {
		t.Errorf("Events not ordered by occurred_at: %s, %s", got[0].AttemptID, got[1].AttemptID)
	}
}

func TestAttemptLog_DuplicateKey(t *testing.T) {
	log := NewAttemptLog()
	ctx := context.Background()

	e := &domain.AttemptEvent{AttemptID: "a1", RequestID: "req1"}
	if err := log.Insert(ctx, e); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}
	if err := log.Insert(ctx, e); !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestAttemptLog_UnknownRequest(t *testing.T) {
	log := NewAttemptLog()

	got, err := log.GetByRequestID(context.Background(), "nope")
	if err != nil {
		t.Fatalf("GetByRequestID failed: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("Expected no events, got %d", len(got))
	}
}

package purchase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-presale/internal/notify"
)

func newTracker(t *testing.T, balanceSOL string) (*BalanceTracker, *fakeLedger, *fakeSigner, *notify.Feed) {
	t.Helper()
	l := newFakeLedger(balanceSOL)
	s := newFakeSigner(t)
	feed := notify.NewFeed(10)
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker := NewBalanceTracker(l, s, BalanceTrackerOptions{
		Notifier: feed,
		Logger:   quietLogger(),
		Now:      func() time.Time { return fixed },
	})
	return tracker, l, s, feed
}

func TestBalanceTracker_Refresh(t *testing.T) {
	tracker, _, signer, _ := newTracker(t, "2.5")

	require.NoError(t, tracker.Refresh(context.Background()))

	snap := tracker.Snapshot()
	assert.True(t, snap.Valid)
	assert.Equal(t, signer.key.String(), snap.Owner)
	assert.Equal(t, uint64(2_500_000_000), snap.Lamports)
	assert.Equal(t, "2.5", snap.SOL().String())
	assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), snap.RefreshedAt)

	lamports, ok := tracker.Cached(signer.key.String())
	assert.True(t, ok)
	assert.Equal(t, uint64(2_500_000_000), lamports)

	_, ok = tracker.Cached(testTreasury)
	assert.False(t, ok, "cache is keyed by owner")
}

func TestBalanceTracker_FailureKeepsPreviousValue(t *testing.T) {
	tracker, l, _, feed := newTracker(t, "3")
	require.NoError(t, tracker.Refresh(context.Background()))

	l.mu.Lock()
	l.balanceErr = errors.New("node unavailable")
	l.mu.Unlock()

	err := tracker.Refresh(context.Background())
	require.Error(t, err)

	snap := tracker.Snapshot()
	assert.True(t, snap.Valid)
	assert.Equal(t, uint64(3_000_000_000), snap.Lamports)

	recent := feed.Recent(10)
	require.Len(t, recent, 1, "one notification per failed refresh")
	assert.Equal(t, notify.LevelWarn, recent[0].Level)
	assert.Contains(t, recent[0].Message, "node unavailable")
}

func TestBalanceTracker_NotConnectedClears(t *testing.T) {
	tracker, l, signer, _ := newTracker(t, "1")
	require.NoError(t, tracker.Refresh(context.Background()))
	require.NoError(t, signer.Disconnect())
	reads := l.count("balance")

	err := tracker.Refresh(context.Background())

	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, tracker.Snapshot().Valid)
	assert.Equal(t, reads, l.count("balance"))
}

func TestBalanceTracker_RunFollowsConnection(t *testing.T) {
	tracker, l, signer, _ := newTracker(t, "4")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		tracker.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return tracker.Snapshot().Valid }, time.Second, 5*time.Millisecond,
		"initial refresh while connected")

	require.NoError(t, signer.Disconnect())
	require.Eventually(t, func() bool { return !tracker.Snapshot().Valid }, time.Second, 5*time.Millisecond,
		"cleared on disconnect")

	l.mu.Lock()
	l.balance = 7_000_000_000
	l.mu.Unlock()

	_, err := signer.Connect(context.Background())
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		snap := tracker.Snapshot()
		return snap.Valid && snap.Lamports == 7_000_000_000
	}, time.Second, 5*time.Millisecond, "refreshed on connect")

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

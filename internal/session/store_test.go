package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess, err := store.Create(ctx, "user-1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.ID)
	require.Equal(t, StatusActive, sess.Status)
	require.Empty(t, sess.Turns)

	require.NoError(t, store.AppendTurn(ctx, sess.ID, Turn{Role: RoleUser, Content: "hello"}))
	require.NoError(t, store.AppendTurn(ctx, sess.ID, Turn{Role: RoleAgent, Content: "hi there"}))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Turns, 2)
	require.Equal(t, RoleUser, got.Turns[0].Role)
	require.False(t, got.Turns[0].Timestamp.IsZero())
}

func TestMemoryStoreRequiresUser(t *testing.T) {
	_, err := NewMemoryStore().Create(context.Background(), "")
	require.Error(t, err)
}

func TestTurnsAreOrderedByAppendTime(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess, _ := store.Create(ctx, "user-1")

	first := time.Now().Add(-time.Minute)
	require.NoError(t, store.AppendTurn(ctx, sess.ID, Turn{Role: RoleUser, Content: "a", Timestamp: first}))
	require.NoError(t, store.AppendTurn(ctx, sess.ID, Turn{Role: RoleAgent, Content: "b"}))

	got, _ := store.Get(ctx, sess.ID)
	require.True(t, got.Turns[0].Timestamp.Before(got.Turns[1].Timestamp))
}

func TestTerminalSessionRejectsAppends(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for _, terminal := range []Status{StatusCompleted, StatusFailed} {
		sess, _ := store.Create(ctx, "user-1")
		require.NoError(t, store.SetStatus(ctx, sess.ID, terminal))

		err := store.AppendTurn(ctx, sess.ID, Turn{Role: RoleUser, Content: "too late"})
		require.Error(t, err)
		require.True(t, IsTerminalState(err))
	}
}

func TestStatusStateMachine(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess, _ := store.Create(ctx, "user-1")

	// active -> awaiting -> active -> completed
	require.NoError(t, store.SetStatus(ctx, sess.ID, StatusAwaitingUser))
	require.NoError(t, store.SetStatus(ctx, sess.ID, StatusActive))
	require.NoError(t, store.SetStatus(ctx, sess.ID, StatusCompleted))

	// terminal states accept no further transitions
	err := store.SetStatus(ctx, sess.ID, StatusActive)
	require.Error(t, err)
	require.True(t, IsTerminalState(err))
}

func TestFailedReachableFromAnyNonTerminalState(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	sess, _ := store.Create(ctx, "user-1")
	require.NoError(t, store.SetStatus(ctx, sess.ID, StatusFailed))

	sess2, _ := store.Create(ctx, "user-1")
	require.NoError(t, store.SetStatus(ctx, sess2.ID, StatusAwaitingUser))
	require.NoError(t, store.SetStatus(ctx, sess2.ID, StatusFailed))

	// but not from completed
	sess3, _ := store.Create(ctx, "user-1")
	require.NoError(t, store.SetStatus(ctx, sess3.ID, StatusCompleted))
	require.Error(t, store.SetStatus(ctx, sess3.ID, StatusFailed))
}

func TestArchiveRetainsSession(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess, _ := store.Create(ctx, "user-1")

	// only terminal sessions can be archived
	require.Error(t, store.Archive(ctx, sess.ID))

	require.NoError(t, store.SetStatus(ctx, sess.ID, StatusCompleted))
	require.NoError(t, store.Archive(ctx, sess.ID))

	got, err := store.Get(ctx, sess.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ArchivedAt)
}

func TestGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	sess, _ := store.Create(ctx, "user-1")
	require.NoError(t, store.AppendTurn(ctx, sess.ID, Turn{Role: RoleUser, Content: "original"}))

	got, _ := store.Get(ctx, sess.ID)
	got.Turns[0].Content = "mutated"

	again, _ := store.Get(ctx, sess.ID)
	require.Equal(t, "original", again.Turns[0].Content)
}

func TestListOrdersByRecency(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	a, _ := store.Create(ctx, "user-1")
	b, _ := store.Create(ctx, "user-1")
	time.Sleep(5 * time.Millisecond)
	require.NoError(t, store.AppendTurn(ctx, a.ID, Turn{Role: RoleUser, Content: "bump"}))

	ids, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Equal(t, a.ID, ids[0])
	require.Equal(t, b.ID, ids[1])
}

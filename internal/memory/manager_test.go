package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s, err := NewRedisStore("redis://"+mr.Addr(), "ledgerbuddy", time.Hour)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestRedisStore_GetSetDelete(t *testing.T) {
	s, mr := newRedisStore(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)
	assert.Equal(t, time.Hour, mr.TTL("ledgerbuddy:k"))

	mr.FastForward(2 * time.Hour)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLocalStore_Expiry(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	s := NewLocalStore(time.Minute)
	s.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	_, err := s.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestLocalStore_SetSweepsExpiredValues(t *testing.T) {
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	s := NewLocalStore(time.Minute)
	s.now = func() time.Time { return now }
	s.lastSweep = now
	ctx := context.Background()

	for i := 0; i < 1000; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("transcript:%d", i), []byte("{}")))
	}
	assert.Equal(t, 1000, s.Len())

	// Keys that are never read again must still go away.
	now = now.Add(48 * time.Hour)
	require.NoError(t, s.Set(ctx, "transcript:last", []byte("{}")))
	assert.Equal(t, 1, s.Len())

	_, err := s.Get(ctx, "transcript:last")
	assert.NoError(t, err)
}

func TestLocalStore_NoTTLKeepsValues(t *testing.T) {
	s := NewLocalStore(0)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	assert.Equal(t, 2, s.Len())
}

func newManager(t *testing.T, store Store) (*Manager, *time.Time) {
	t.Helper()
	now := time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC)
	m := NewManager(store, DefaultInactivityWindow, nil)
	m.SetClock(func() time.Time { return now })
	return m, &now
}

func TestManager_RecordThenBegin(t *testing.T) {
	s, _ := newRedisStore(t)
	m, now := newManager(t, s)
	ctx := context.Background()

	cc, err := m.Begin(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, cc.PreviousResponseID)

	_, err = m.Record(ctx, "chat-1", "resp-1", "consult")
	require.NoError(t, err)

	*now = now.Add(10 * time.Minute)
	cc, err = m.Begin(ctx, "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "resp-1", cc.PreviousResponseID)
	assert.Equal(t, "consult", cc.LastInteractionKind)

	started := cc.ConversationStartedAt
	cc, err = m.Record(ctx, "chat-1", "resp-2", "complex_report")
	require.NoError(t, err)
	assert.Equal(t, started, cc.ConversationStartedAt)
	assert.Equal(t, *now, cc.LastInteractionAt)
}

func TestManager_StaleContextIsCleared(t *testing.T) {
	m, now := newManager(t, NewLocalStore(0))
	ctx := context.Background()

	_, err := m.Record(ctx, "chat-1", "resp-1", "consult")
	require.NoError(t, err)

	*now = now.Add(31 * time.Minute)
	cc, err := m.Begin(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, cc.PreviousResponseID)

	stored, err := m.Load(ctx, "chat-1")
	require.NoError(t, err)
	assert.Empty(t, stored.PreviousResponseID, "stale context is deleted, not just ignored")
}

func TestManager_ConversationsAreIndependent(t *testing.T) {
	m, _ := newManager(t, NewLocalStore(0))
	ctx := context.Background()

	_, err := m.Record(ctx, "a", "resp-a", "consult")
	require.NoError(t, err)

	cc, err := m.Begin(ctx, "b")
	require.NoError(t, err)
	assert.Empty(t, cc.PreviousResponseID)

	require.NoError(t, m.Reset(ctx, "a"))
	cc, err = m.Begin(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, cc.PreviousResponseID)
}

func TestConversationContext_Stale(t *testing.T) {
	now := time.Now()
	assert.True(t, ConversationContext{}.Stale(now, DefaultInactivityWindow))
	assert.False(t, ConversationContext{LastInteractionAt: now.Add(-29 * time.Minute)}.Stale(now, DefaultInactivityWindow))
	assert.True(t, ConversationContext{LastInteractionAt: now.Add(-31 * time.Minute)}.Stale(now, DefaultInactivityWindow))
}

func TestManager_TouchKeepsLiveHandle(t *testing.T) {
	m, now := newManager(t, NewLocalStore(0))
	ctx := context.Background()

	_, err := m.Record(ctx, "conv-1", "resp-1", "consult")
	require.NoError(t, err)

	// Twenty minutes of logging transactions, then a consult.
	*now = now.Add(20 * time.Minute)
	cc, err := m.Touch(ctx, "conv-1", "add_transaction")
	require.NoError(t, err)
	assert.Equal(t, "resp-1", cc.PreviousResponseID)
	assert.Equal(t, "add_transaction", cc.LastInteractionKind)

	*now = now.Add(25 * time.Minute)
	cc, err = m.Begin(ctx, "conv-1")
	require.NoError(t, err)
	assert.Equal(t, "resp-1", cc.PreviousResponseID, "touch refreshed the inactivity window")
}

func TestManager_TouchClearsStaleHandle(t *testing.T) {
	m, now := newManager(t, NewLocalStore(0))
	ctx := context.Background()

	_, err := m.Record(ctx, "conv-1", "resp-1", "consult")
	require.NoError(t, err)
	*now = now.Add(31 * time.Minute)

	cc, err := m.Touch(ctx, "conv-1", "get_report")
	require.NoError(t, err)
	assert.Empty(t, cc.PreviousResponseID)
	assert.Equal(t, *now, cc.ConversationStartedAt)
}

func TestManager_LocksAreReleased(t *testing.T) {
	m, _ := newManager(t, NewLocalStore(0))
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("conv-%d", i%5)
			_, _ = m.Record(ctx, id, "resp", "consult")
			_, _ = m.Begin(ctx, id)
		}(i)
	}
	wg.Wait()
	assert.Zero(t, m.lockCount())
}

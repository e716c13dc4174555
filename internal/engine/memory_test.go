package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, cfg MemoryStoreConfig, opts ...MemoryStoreOption) *MemoryStore {
	t.Helper()
	store := NewMemoryStore(cfg, testLogger(), opts...)
	t.Cleanup(store.Close)
	return store
}

func TestMemoryStoreCreatesFreshContext(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{})

	handle, err := store.Acquire(context.Background(), "+5511999990000", "Maria")
	require.NoError(t, err)
	defer handle.Release()

	snap := handle.Snapshot()
	assert.Equal(t, "+5511999990000", snap.Sender)
	assert.Equal(t, "Maria", snap.Name)
	assert.Equal(t, StatePending, snap.State)
	assert.Zero(t, snap.HistoryLen)
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreUpdateBoundsHistory(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{HistoryLength: 3})

	for i := 0; i < 5; i++ {
		handle, err := store.Acquire(context.Background(), "sender", "")
		require.NoError(t, err)
		handle.Update(TurnUpdate{
			Turn: Turn{Inbound: fmt.Sprintf("msg %d", i), Intent: IntentGreeting, At: time.Now()},
		})
		handle.Release()
	}

	handle, err := store.Acquire(context.Background(), "sender", "")
	require.NoError(t, err)
	defer handle.Release()
	assert.Equal(t, 3, handle.Snapshot().HistoryLen)
}

func TestMemoryStoreFactsMergeLastWriteWins(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{})

	handle, err := store.Acquire(context.Background(), "sender", "")
	require.NoError(t, err)
	handle.Update(TurnUpdate{Facts: map[string]string{FactPreferredPayment: "boleto"}})
	handle.Update(TurnUpdate{Facts: map[string]string{
		FactPreferredPayment: "pix",
		FactHardshipReason:   "desemprego",
	}})
	snap := handle.Snapshot()
	handle.Release()

	assert.Equal(t, "pix", snap.Facts[FactPreferredPayment])
	assert.Equal(t, "desemprego", snap.Facts[FactHardshipReason])
}

func TestMemoryStoreSerializesSameSender(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{HistoryLength: 100})

	const workers = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := store.Acquire(context.Background(), "sender", "")
			if err != nil {
				t.Error(err)
				return
			}
			handle.Update(TurnUpdate{Turn: Turn{Inbound: fmt.Sprintf("msg %d", i)}})
			handle.Release()
		}(i)
	}
	wg.Wait()

	handle, err := store.Acquire(context.Background(), "sender", "")
	require.NoError(t, err)
	defer handle.Release()
	assert.Equal(t, workers, handle.Snapshot().HistoryLen)
}

func TestMemoryStoreLockTimeout(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{LockTimeout: 50 * time.Millisecond})

	handle, err := store.Acquire(context.Background(), "sender", "")
	require.NoError(t, err)
	defer handle.Release()

	_, err = store.Acquire(context.Background(), "sender", "")
	assert.ErrorIs(t, err, ErrLockTimeout)
}

func TestMemoryStoreEvictExpired(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{TTL: 10 * time.Millisecond})

	handle, err := store.Acquire(context.Background(), "idle", "")
	require.NoError(t, err)
	handle.Release()

	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, 1, store.EvictExpired(context.Background()))
	assert.Zero(t, store.Len())

	// A fresh context replaces the evicted one on next contact.
	handle, err = store.Acquire(context.Background(), "idle", "")
	require.NoError(t, err)
	defer handle.Release()
	assert.Zero(t, handle.Snapshot().HistoryLen)
}

func TestMemoryStoreEvictSkipsLockedContexts(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{TTL: time.Nanosecond})

	handle, err := store.Acquire(context.Background(), "busy", "")
	require.NoError(t, err)
	defer handle.Release()

	time.Sleep(time.Millisecond)
	assert.Zero(t, store.EvictExpired(context.Background()))
	assert.Equal(t, 1, store.Len())
}

func TestMemoryStoreDelete(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{})

	handle, err := store.Acquire(context.Background(), "sender", "")
	require.NoError(t, err)
	handle.Release()

	require.NoError(t, store.Delete(context.Background(), "sender"))
	assert.Zero(t, store.Len())

	_, found, err := store.Peek(context.Background(), "sender")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryStorePeek(t *testing.T) {
	store := newTestStore(t, MemoryStoreConfig{})

	_, found, err := store.Peek(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, found)

	handle, err := store.Acquire(context.Background(), "sender", "Ana")
	require.NoError(t, err)
	handle.Update(TurnUpdate{State: StateNegotiating, IncrementNegotiation: true})
	handle.Release()

	snap, found, err := store.Peek(context.Background(), "sender")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StateNegotiating, snap.State)
	assert.Equal(t, 1, snap.NegotiationAttempts)
}

func TestMemoryStoreClosedAcquireFails(t *testing.T) {
	store := NewMemoryStore(MemoryStoreConfig{}, testLogger())
	store.Close()

	_, err := store.Acquire(context.Background(), "sender", "")
	assert.ErrorIs(t, err, ErrStoreClosed)
}

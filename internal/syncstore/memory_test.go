package syncstore

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	changes []Change
}

func (r *recorder) add(c Change) {
	r.mu.Lock()
	r.changes = append(r.changes, c)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []Change {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Change(nil), r.changes...)
}

func TestMemoryStore_GetPut(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBus().Open("a")

	_, err := s.Get(ctx, "auctionState")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put(ctx, "auctionState", []byte(`{"running":true}`)))
	v, err := s.Get(ctx, "auctionState")
	require.NoError(t, err)
	assert.JSONEq(t, `{"running":true}`, string(v))
}

func TestMemoryStore_WatchSkipsOwnWrites(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus()
	a, b := bus.Open("a"), bus.Open("b")

	var seenByA, seenByB recorder
	go a.Watch(ctx, seenByA.add)
	go b.Watch(ctx, seenByB.add)
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.watchers) == 2
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Put(ctx, "auctionConfig", []byte(`{"room_code":"X"}`)))

	require.Eventually(t, func() bool { return len(seenByB.snapshot()) == 1 }, time.Second, 5*time.Millisecond)
	got := seenByB.snapshot()[0]
	assert.Equal(t, "auctionConfig", got.Key)
	assert.Equal(t, "a", got.Origin)
	assert.JSONEq(t, `{"room_code":"X"}`, string(got.Value))
	assert.Empty(t, seenByA.snapshot())
}

func TestMemoryStore_LastWriterWins(t *testing.T) {
	ctx := context.Background()
	bus := NewMemoryBus()
	a, b := bus.Open(""), bus.Open("")
	assert.NotEqual(t, a.Origin(), b.Origin())

	require.NoError(t, a.Put(ctx, "k", []byte("1")))
	require.NoError(t, b.Put(ctx, "k", []byte("2")))

	v, err := a.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "2", string(v))
}

func TestMemoryStore_PutDoesNotWaitOnSlowWatcher(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewMemoryBus()
	a, b := bus.Open("a"), bus.Open("b")

	release := make(chan struct{})
	var seen recorder
	go b.Watch(ctx, func(c Change) {
		<-release
		seen.add(c)
	})
	require.Eventually(t, func() bool {
		bus.mu.RLock()
		defer bus.mu.RUnlock()
		return len(bus.watchers) == 1
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			_ = a.Put(ctx, "auctionState", []byte(strconv.Itoa(i)))
		}
		_ = a.Put(ctx, "auctionConfig", []byte(`"cfg"`))
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Put blocked on a watcher that is not reading")
	}
	close(release)

	require.Eventually(t, func() bool {
		latest := map[string]string{}
		for _, c := range seen.snapshot() {
			latest[c.Key] = string(c.Value)
		}
		return latest["auctionState"] == "499" && latest["auctionConfig"] == `"cfg"`
	}, time.Second, 5*time.Millisecond)
	assert.Less(t, len(seen.snapshot()), 500)
}

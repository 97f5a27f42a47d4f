package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taxipulse/internal/dataprocessing"
)

type evictions struct {
	mu    sync.Mutex
	names []string
}

func (e *evictions) record(_ context.Context, ds *Dataset, reason string) {
	e.mu.Lock()
	e.names = append(e.names, ds.Name+":"+reason)
	e.mu.Unlock()
}

func (e *evictions) list() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.names...)
}

func testTable(t *testing.T) *dataprocessing.TripTable {
	t.Helper()
	table, err := dataprocessing.NewLoader(dataprocessing.DefaultOptions(), discardLogger(), nil).
		Load(context.Background(), strings.NewReader(tripsCSV))
	require.NoError(t, err)
	return table
}

func TestRegistryIdleExpiry(t *testing.T) {
	evicted := &evictions{}
	reg := NewRegistry(10, 300*time.Millisecond, evicted.record)

	ctx := context.Background()
	table := testTable(t)

	old := reg.Add(ctx, "old", "h1", table)
	fresh := reg.Add(ctx, "fresh", "h2", table)

	// fresh is used every 100ms, old never
	for i := 0; i < 4; i++ {
		time.Sleep(100 * time.Millisecond)
		_, ok := reg.Get(ctx, fresh.ID)
		require.True(t, ok, "use refreshes the idle clock")
	}

	_, ok := reg.Get(ctx, old.ID)
	assert.False(t, ok)
	got, ok := reg.Get(ctx, fresh.ID)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), got.Info().LastUsed, time.Second)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"old:idle"}, evicted.list())
	}, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool { return reg.Len() == 0 }, 3*time.Second, 20*time.Millisecond)
	assert.Empty(t, reg.List(ctx))
	require.Eventually(t, func() bool { return len(evicted.list()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"old:idle", "fresh:idle"}, evicted.list())
}

func TestRegistryCapacity(t *testing.T) {
	evicted := &evictions{}
	reg := NewRegistry(2, 0, evicted.record)
	ctx := context.Background()
	table := testTable(t)

	a := reg.Add(ctx, "a", "h", table)
	reg.Add(ctx, "b", "h", table)
	reg.Add(ctx, "c", "h", table)

	_, ok := reg.Get(ctx, a.ID)
	assert.False(t, ok)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"a:capacity"}, evicted.list())
	}, 2*time.Second, 10*time.Millisecond)

	names := []string{}
	for _, info := range reg.List(ctx) {
		names = append(names, info.Name)
	}
	assert.ElementsMatch(t, []string{"b", "c"}, names)
}

func TestRegistryCapacityKeepsRecentlyUsed(t *testing.T) {
	evicted := &evictions{}
	reg := NewRegistry(2, time.Hour, evicted.record)
	ctx := context.Background()
	table := testTable(t)

	a := reg.Add(ctx, "a", "h", table)
	b := reg.Add(ctx, "b", "h", table)
	_, ok := reg.Get(ctx, a.ID)
	require.True(t, ok)
	reg.Add(ctx, "c", "h", table)

	_, ok = reg.Get(ctx, b.ID)
	assert.False(t, ok)
	_, ok = reg.Get(ctx, a.ID)
	assert.True(t, ok)
	require.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"b:capacity"}, evicted.list())
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRegistryRemove(t *testing.T) {
	evicted := &evictions{}
	reg := NewRegistry(0, 0, evicted.record)
	ctx := context.Background()

	ds := reg.Add(ctx, "only", "h", testTable(t))
	removed, ok := reg.Remove(ds.ID)
	require.True(t, ok)
	assert.Same(t, ds, removed)

	_, ok = reg.Remove(ds.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, evicted.list(), "explicit removal is not an eviction")
}

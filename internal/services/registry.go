package services

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jellydator/ttlcache/v3"

	"taxipulse/internal/dataprocessing"
)

// Eviction reasons reported to the registry's evict callback
const (
	EvictCapacity = "capacity"
	EvictIdle     = "idle"
)

// Dataset is one loaded upload held by the registry
type Dataset struct {
	ID       string
	Name     string
	Hash     string
	Table    *dataprocessing.TripTable
	LoadedAt time.Time
	lastUsed atomic.Int64
}

// DatasetInfo is the public summary of a dataset
type DatasetInfo struct {
	ID           string    `json:"dataset_id"`
	Name         string    `json:"name"`
	Rows         int       `json:"rows"`
	SkippedLines int       `json:"skipped_lines"`
	Columns      []string  `json:"columns"`
	HasDuration  bool      `json:"has_duration"`
	LoadedAt     time.Time `json:"loaded_at"`
	LastUsed     time.Time `json:"last_used"`
}

// Info summarizes the dataset
func (d *Dataset) Info() DatasetInfo {
	return DatasetInfo{
		ID:           d.ID,
		Name:         d.Name,
		Rows:         d.Table.Rows(),
		SkippedLines: d.Table.SkippedLines(),
		Columns:      d.Table.Columns(),
		HasDuration:  d.Table.HasDuration(),
		LoadedAt:     d.LoadedAt,
		LastUsed:     time.Unix(0, d.lastUsed.Load()),
	}
}

// EvictFunc is called for every dataset the registry drops on its own.
// It must not call back into the registry.
type EvictFunc func(ctx context.Context, ds *Dataset, reason string)

// Registry holds datasets in memory with a capacity bound (least recently
// used evicted first) and an idle TTL that every access refreshes. Expired
// datasets are dropped lazily on the next registry call.
type Registry struct {
	mu    sync.Mutex
	cache *ttlcache.Cache[string, *Dataset]
}

// NewRegistry creates a registry. A non-positive idleTTL disables expiry.
func NewRegistry(capacity int, idleTTL time.Duration, onEvict EvictFunc) *Registry {
	if capacity <= 0 {
		capacity = 1
	}
	opts := []ttlcache.Option[string, *Dataset]{
		ttlcache.WithCapacity[string, *Dataset](uint64(capacity)),
	}
	if idleTTL > 0 {
		opts = append(opts, ttlcache.WithTTL[string, *Dataset](idleTTL))
	}
	cache := ttlcache.New[string, *Dataset](opts...)
	if onEvict != nil {
		cache.OnEviction(func(ctx context.Context, reason ttlcache.EvictionReason, item *ttlcache.Item[string, *Dataset]) {
			switch reason {
			case ttlcache.EvictionReasonCapacityReached:
				onEvict(ctx, item.Value(), EvictCapacity)
			case ttlcache.EvictionReasonExpired:
				onEvict(ctx, item.Value(), EvictIdle)
			}
		})
	}
	return &Registry{cache: cache}
}

// Add stores a table under a new id and returns the dataset
func (r *Registry) Add(ctx context.Context, name, hash string, table *dataprocessing.TripTable) *Dataset {
	now := time.Now()
	ds := &Dataset{
		ID:       uuid.New().String(),
		Name:     name,
		Hash:     hash,
		Table:    table,
		LoadedAt: now,
	}
	ds.lastUsed.Store(now.UnixNano())

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.DeleteExpired()
	r.cache.Set(ds.ID, ds, ttlcache.DefaultTTL)
	return ds
}

// Get returns the dataset and marks it used
func (r *Registry) Get(ctx context.Context, id string) (*Dataset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.DeleteExpired()

	item := r.cache.Get(id)
	if item == nil {
		return nil, false
	}
	ds := item.Value()
	ds.lastUsed.Store(time.Now().UnixNano())
	return ds, true
}

// Remove drops the dataset without notifying the evict callback; it
// reports whether it was present
func (r *Registry) Remove(id string) (*Dataset, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	item := r.cache.Get(id, ttlcache.WithDisableTouchOnHit[string, *Dataset]())
	if item == nil {
		return nil, false
	}
	r.cache.Delete(id)
	return item.Value(), true
}

// List returns summaries of all live datasets, oldest first
func (r *Registry) List(ctx context.Context) []DatasetInfo {
	r.mu.Lock()
	r.cache.DeleteExpired()
	items := r.cache.Items()
	r.mu.Unlock()

	infos := make([]DatasetInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, item.Value().Info())
	}
	sort.SliceStable(infos, func(i, j int) bool { return infos[i].LoadedAt.Before(infos[j].LoadedAt) })
	return infos
}

// Len returns the number of held datasets
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.DeleteExpired()
	return r.cache.Len()
}

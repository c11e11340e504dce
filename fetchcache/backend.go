package fetchcache

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// Entry is one cached API response
type Entry struct {
	URL       string          `json:"url"`
	FetchedAt time.Time       `json:"fetched_at"`
	Payload   json.RawMessage `json:"payload"`
}

// Backend stores entries by key. Implementations must be safe for concurrent use.
type Backend interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, entry Entry) error
	Delete(ctx context.Context, key string) error
	DeletePrefix(ctx context.Context, prefix string) error
}

var _ Backend = (*MemoryBackend)(nil)

// MemoryBackend keeps entries in process memory. Expired entries are left in place and
// overwritten on the next fetch; Sweep drops the ones older than a cutoff.
type MemoryBackend struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{entries: make(map[string]Entry)}
}

func (b *MemoryBackend) Get(_ context.Context, key string) (Entry, bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	return e, ok, nil
}

func (b *MemoryBackend) Set(_ context.Context, key string, entry Entry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = entry
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *MemoryBackend) DeletePrefix(_ context.Context, prefix string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k := range b.entries {
		if strings.HasPrefix(k, prefix) {
			delete(b.entries, k)
		}
	}
	return nil
}

// Sweep removes entries fetched before cutoff and returns how many were dropped
func (b *MemoryBackend) Sweep(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	dropped := 0
	for k, e := range b.entries {
		if e.FetchedAt.Before(cutoff) {
			delete(b.entries, k)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of stored entries
func (b *MemoryBackend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.entries)
}

package fetchcache

import (
	"strings"
	"sync"
)

// maxInvalidations bounds the history a fill is checked against. A fill older than the
// history is treated as stale.
const maxInvalidations = 64

type invalidation struct {
	gen    uint64
	prefix string
	exact  bool
}

func (i invalidation) covers(key string) bool {
	if i.exact {
		return key == i.prefix
	}
	return strings.HasPrefix(key, i.prefix)
}

// invalidationLog lets a fill notice that its key was invalidated while the network read
// was in flight, so a pre-mutation payload is not stored for a full TTL.
// Namespace views share one log with their parent.
type invalidationLog struct {
	mu       sync.Mutex
	gen      uint64
	recent   []invalidation
	inflight map[string]int
}

func newInvalidationLog() *invalidationLog {
	return &invalidationLog{inflight: map[string]int{}}
}

// begin registers an in-flight fill of key and returns the generation it started at
func (l *invalidationLog) begin(key string) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.inflight[key]++
	return l.gen
}

func (l *invalidationLog) end(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.inflight[key]--; l.inflight[key] <= 0 {
		delete(l.inflight, key)
	}
}

// record notes an invalidation and returns the in-flight keys it covers
func (l *invalidationLog) record(prefix string, exact bool) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.gen++
	inv := invalidation{gen: l.gen, prefix: prefix, exact: exact}
	l.recent = append(l.recent, inv)
	if len(l.recent) > maxInvalidations {
		l.recent = append(l.recent[:0:0], l.recent[len(l.recent)-maxInvalidations:]...)
	}
	var keys []string
	for key := range l.inflight {
		if inv.covers(key) {
			keys = append(keys, key)
		}
	}
	return keys
}

// staleSince reports whether key was invalidated after generation start
func (l *invalidationLog) staleSince(start uint64, key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.gen == start {
		return false
	}
	if len(l.recent) == 0 || l.recent[0].gen > start+1 {
		return true
	}
	for _, inv := range l.recent {
		if inv.gen > start && inv.covers(key) {
			return true
		}
	}
	return false
}

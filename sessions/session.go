package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/fetchcache"
	"github.com/jrsteele09/retail-console/state"
)

// Session is the server-side half of one browser. It lives in memory on the replica that
// serves the browser; its persisted state survives eviction through state.Storage.
type Session struct {
	ID        string
	State     *state.Session
	Cache     *fetchcache.Cache
	Queries   *fetchcache.QuerySet
	CreatedAt time.Time

	focus  chan connectivity.Event
	cancel context.CancelFunc

	mu       sync.Mutex
	lastSeen time.Time
}

// LastSeen returns the time of the last request made with this session
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

// Focus asks the session's live queries to revalidate
func (s *Session) Focus() {
	select {
	case s.focus <- connectivity.Focus:
	default:
	}
}

// watch feeds connectivity events and focus requests to the query set until ctx is done
func (s *Session) watch(ctx context.Context, events <-chan connectivity.Event) {
	merged := make(chan connectivity.Event, 1)
	go func() {
		defer close(merged)
		for {
			var e connectivity.Event
			select {
			case <-ctx.Done():
				return
			case e = <-s.focus:
			case ev, ok := <-events:
				if !ok {
					events = nil
					continue
				}
				e = ev
			}
			select {
			case merged <- e:
			case <-ctx.Done():
				return
			}
		}
	}()
	s.Queries.Watch(ctx, merged)
}

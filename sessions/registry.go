package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/jrsteele09/retail-console/connectivity"
	"github.com/jrsteele09/retail-console/fetchcache"
	"github.com/jrsteele09/retail-console/state"
)

// EventSource delivers connectivity events to subscribers
type EventSource interface {
	Subscribe() (<-chan connectivity.Event, func())
}

// Registry owns the live console sessions
type Registry struct {
	storage   state.Storage
	cache     *fetchcache.Cache
	queryOpts fetchcache.QueryOptions
	events    EventSource
	onEvict   []func(id string)
	now       func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

type Option func(*Registry)

// WithEventSource revalidates each session's queries on connectivity events
func WithEventSource(events EventSource) Option {
	return func(r *Registry) {
		r.events = events
	}
}

// OnEvict registers fn to run when a session is dropped
func OnEvict(fn func(id string)) Option {
	return func(r *Registry) {
		r.onEvict = append(r.onEvict, fn)
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

func NewRegistry(storage state.Storage, cache *fetchcache.Cache, queryOpts fetchcache.QueryOptions, opts ...Option) *Registry {
	r := &Registry{
		storage:   storage,
		cache:     cache,
		queryOpts: queryOpts,
		now:       time.Now,
		sessions:  make(map[string]*Session),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// NewID returns a fresh session id
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like an id issued by NewID
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// Get returns the session for id, creating and hydrating it on first use. A hydration
// failure is retried on the next Get; meanwhile the session reports itself unhydrated.
func (r *Registry) Get(ctx context.Context, id string) *Session {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if !ok {
		s = r.create(id)
		r.sessions[id] = s
	}
	r.mu.Unlock()

	s.touch(r.now())
	if !s.State.Hydrated() {
		if err := s.State.Hydrate(ctx); err != nil {
			log.Warn().Err(err).Str("session", id).Msg("could not hydrate console session")
		}
	}
	return s
}

func (r *Registry) create(id string) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := r.now()
	s := &Session{
		ID:        id,
		State:     state.NewSession(r.storage, id),
		Cache:     r.cache.Namespace(id),
		Queries:   fetchcache.NewQuerySet(r.queryOpts),
		CreatedAt: now,
		lastSeen:  now,
		focus:     make(chan connectivity.Event, 1),
		cancel:    cancel,
	}

	var events <-chan connectivity.Event
	release := func() {}
	if r.events != nil {
		events, release = r.events.Subscribe()
	}
	go func() {
		defer release()
		s.watch(ctx, events)
	}()
	return s
}

// Peek returns the live session for id without creating one
func (r *Registry) Peek(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Delete drops the live session for id. Persisted state is kept.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if ok {
		r.evict(s)
	}
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Sweep drops sessions idle for longer than maxAge and returns how many were dropped
func (r *Registry) Sweep(maxAge time.Duration) int {
	cutoff := r.now().Add(-maxAge)
	var idle []*Session

	r.mu.Lock()
	for id, s := range r.sessions {
		if s.LastSeen().Before(cutoff) {
			idle = append(idle, s)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	for _, s := range idle {
		r.evict(s)
	}
	if len(idle) > 0 {
		log.Debug().Int("sessions", len(idle)).Msg("swept idle console sessions")
	}
	return len(idle)
}

// Run sweeps idle sessions until ctx is done
func (r *Registry) Run(ctx context.Context, maxAge time.Duration) {
	interval := maxAge / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(maxAge)
		}
	}
}

// Close drops every live session
func (r *Registry) Close() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()
	for _, s := range all {
		r.evict(s)
	}
}

func (r *Registry) evict(s *Session) {
	s.cancel()
	if err := s.Cache.InvalidatePrefix(context.Background(), ""); err != nil {
		log.Warn().Err(err).Str("session", s.ID).Msg("could not drop cached responses")
	}
	for _, fn := range r.onEvict {
		fn(s.ID)
	}
}

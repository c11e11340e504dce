package fetchcache

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/jrsteele09/retail-console/apiclient"
	"github.com/jrsteele09/retail-console/connectivity"
)

const queryFlightKey = "query"

// QueryOptions configure the revalidating variant
type QueryOptions struct {
	RetryCount    int
	RetryInterval time.Duration
}

// QueryState is a point-in-time view of a query
type QueryState struct {
	Data      json.RawMessage
	Err       *apiclient.FetchError
	FetchedAt time.Time
	Loaded    bool
}

// Query caches one URL without a TTL. It serves the last good payload until it is
// revalidated by Refetch, a connectivity event, or replaced by Mutate.
type Query struct {
	url  string
	opts QueryOptions
	now  func() time.Time

	mu        sync.RWMutex
	data      json.RawMessage
	err       *apiclient.FetchError
	fetchedAt time.Time
	loaded    bool
	lastFetch Fetcher
	lastUsed  time.Time

	group singleflight.Group
}

func newQuery(url string, opts QueryOptions, now func() time.Time) *Query {
	return &Query{url: url, opts: opts, now: now, lastUsed: now()}
}

func (q *Query) URL() string {
	return q.url
}

// Data returns the cached payload, fetching it on first use
func (q *Query) Data(ctx context.Context, fetch Fetcher) (json.RawMessage, error) {
	q.mu.Lock()
	q.lastFetch = fetch
	q.lastUsed = q.now()
	if q.loaded {
		data := q.data
		q.mu.Unlock()
		return data, nil
	}
	q.mu.Unlock()
	return q.revalidate(ctx, fetch)
}

// Refetch drops the cached payload and forces a network read
func (q *Query) Refetch(ctx context.Context, fetch Fetcher) (json.RawMessage, error) {
	q.mu.Lock()
	q.loaded = false
	q.data = nil
	if fetch != nil {
		q.lastFetch = fetch
	} else {
		fetch = q.lastFetch
	}
	q.mu.Unlock()
	q.group.Forget(queryFlightKey)
	queryRevalidations.WithLabelValues("refetch").Inc()
	if fetch == nil {
		return Empty, nil
	}
	return q.revalidate(ctx, fetch)
}

// Mutate replaces the cached payload locally, e.g. optimistically after a mutation
func (q *Query) Mutate(data json.RawMessage) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.data = data
	q.err = nil
	q.loaded = true
	q.fetchedAt = q.now()
}

// State returns the current view of the query
func (q *Query) State() QueryState {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return QueryState{Data: q.data, Err: q.err, FetchedAt: q.fetchedAt, Loaded: q.loaded}
}

func (q *Query) revalidate(ctx context.Context, fetch Fetcher) (json.RawMessage, error) {
	for attempt := 0; ; attempt++ {
		ch := q.group.DoChan(queryFlightKey, func() (any, error) {
			return q.fill(ctx, fetch)
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// The caller that owned the shared fetch went away; this one is still waiting
				if apiclient.IsAborted(res.Err) && ctx.Err() == nil && attempt < maxJoinAttempts {
					continue
				}
				return nil, res.Err
			}
			return res.Val.(json.RawMessage), nil
		}
	}
}

func (q *Query) fill(ctx context.Context, fetch Fetcher) (json.RawMessage, error) {
	payload, err := q.fetchWithRetry(ctx, fetch)
	if err != nil {
		if apiclient.IsAborted(err) {
			return nil, err
		}
		fe := apiclient.AsFetchError(err)
		q.mu.Lock()
		q.err = fe
		q.mu.Unlock()
		return nil, fe
	}
	if len(payload) == 0 {
		payload = Empty
	}
	q.mu.Lock()
	q.data = payload
	q.err = nil
	q.loaded = true
	q.fetchedAt = q.now()
	q.mu.Unlock()
	return payload, nil
}

func (q *Query) fetchWithRetry(ctx context.Context, fetch Fetcher) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= q.opts.RetryCount; attempt++ {
		if attempt > 0 {
			queryRetries.Inc()
			select {
			case <-ctx.Done():
				return nil, context.Canceled
			case <-time.After(q.opts.RetryInterval):
			}
		}
		payload, err := fetch(ctx, q.url)
		if err == nil {
			return payload, nil
		}
		if apiclient.IsAborted(err) || ctx.Err() != nil {
			return nil, context.Canceled
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		log.Debug().Err(err).Str("url", q.url).Int("attempt", attempt+1).Msg("query fetch failed")
	}
	return nil, lastErr
}

// retryable rejects client errors, which a retry cannot fix
func retryable(err error) bool {
	status := apiclient.StatusOf(err)
	if status == http.StatusRequestTimeout || status == http.StatusTooManyRequests {
		return true
	}
	return status < 400 || status >= 500
}

// QuerySet holds the live queries of one console session
type QuerySet struct {
	opts QueryOptions
	now  func() time.Time

	mu      sync.Mutex
	queries map[string]*Query
}

func NewQuerySet(opts QueryOptions) *QuerySet {
	return &QuerySet{
		opts:    opts,
		now:     time.Now,
		queries: make(map[string]*Query),
	}
}

// Query returns the query for url, creating it on first use
func (s *QuerySet) Query(url string) *Query {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.queries[url]
	if !ok {
		q = newQuery(url, s.opts, s.now)
		s.queries[url] = q
	}
	return q
}

// Remove forgets the query for url
func (s *QuerySet) Remove(url string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.queries, url)
}

func (s *QuerySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queries)
}

// Revalidate refetches every query that has been used, keeping stale data on failure
func (s *QuerySet) Revalidate(ctx context.Context, trigger string) {
	s.mu.Lock()
	queries := make([]*Query, 0, len(s.queries))
	for _, q := range s.queries {
		queries = append(queries, q)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, q := range queries {
		q.mu.RLock()
		fetch := q.lastFetch
		q.mu.RUnlock()
		if fetch == nil {
			continue
		}
		g.Go(func() error {
			queryRevalidations.WithLabelValues(trigger).Inc()
			if _, err := q.revalidate(ctx, fetch); err != nil && !apiclient.IsAborted(err) {
				log.Debug().Err(err).Str("url", q.url).Str("trigger", trigger).Msg("revalidation failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}

// Watch revalidates on Focus and Reconnect events until ctx is done or events closes
func (s *QuerySet) Watch(ctx context.Context, events <-chan connectivity.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			if e == connectivity.Focus || e == connectivity.Reconnect {
				s.Revalidate(ctx, e.String())
			}
		}
	}
}

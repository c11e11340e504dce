package fetchcache

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	cacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_fetch_cache_requests_total",
		Help: "Fetch cache reads by result (hit, miss, shared, empty)",
	}, []string{"result"})
	cacheFetchFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_fetch_cache_fetch_failures_total",
		Help: "Failed network fetches by kind (aborted, error)",
	}, []string{"kind"})
	cacheDiscardedFills = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_fetch_cache_discarded_fills_total",
		Help: "Network reads not stored because their url was invalidated while in flight",
	})
	queryRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_query_retries_total",
		Help: "Retries issued by revalidating queries",
	})
	queryRevalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_query_revalidations_total",
		Help: "Revalidations of live queries by trigger (focus, reconnect, refetch)",
	}, []string{"trigger"})
)

package config

import "time"

type Cache struct{}

var _ CacheConfig = Cache{}

// GetFetchCacheTTL is how long a fetched page stays fresh
func (Cache) GetFetchCacheTTL() time.Duration {
	return getDuration("FETCH_CACHE_TTL", 15*time.Second)
}

func (Cache) GetRetryCount() int {
	return getInt("FETCH_RETRY_COUNT", 3)
}

func (Cache) GetRetryInterval() time.Duration {
	return getDuration("FETCH_RETRY_INTERVAL", 5*time.Second)
}

package fetchcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "fetchcache:"

var _ Backend = (*RedisBackend)(nil)

// RedisBackend shares cached responses between console replicas. Entries expire in Redis
// after the cache TTL so stale responses do not accumulate.
type RedisBackend struct {
	client redis.UniversalClient
	expiry time.Duration
}

func NewRedisBackend(client redis.UniversalClient, expiry time.Duration) *RedisBackend {
	return &RedisBackend{client: client, expiry: expiry}
}

func (b *RedisBackend) Get(ctx context.Context, key string) (Entry, bool, error) {
	raw, err := b.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, errors.Wrap(err, "RedisBackend.Get")
	}
	var e Entry
	if err := json.Unmarshal(raw, &e); err != nil {
		// Unreadable entries are dropped and refetched
		_ = b.client.Del(ctx, redisKeyPrefix+key).Err()
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (b *RedisBackend) Set(ctx context.Context, key string, entry Entry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "RedisBackend.Set marshal")
	}
	return errors.Wrap(b.client.Set(ctx, redisKeyPrefix+key, raw, b.expiry).Err(), "RedisBackend.Set")
}

func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	return errors.Wrap(b.client.Del(ctx, redisKeyPrefix+key).Err(), "RedisBackend.Delete")
}

func (b *RedisBackend) DeletePrefix(ctx context.Context, prefix string) error {
	iter := b.client.Scan(ctx, 0, redisKeyPrefix+escapeGlob(prefix)+"*", 200).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return errors.Wrap(err, "RedisBackend.DeletePrefix scan")
	}
	if len(keys) == 0 {
		return nil
	}
	return errors.Wrap(b.client.Del(ctx, keys...).Err(), "RedisBackend.DeletePrefix del")
}

func escapeGlob(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '*', '?', '[', ']', '\\':
			out = append(out, '\\')
		}
		out = append(out, s[i])
	}
	return string(out)
}

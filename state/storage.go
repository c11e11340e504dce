package state

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Storage persists raw container values by key
type Storage interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

var (
	_ Storage = (*MemoryStorage)(nil)
	_ Storage = (*RedisStorage)(nil)
)

type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

func (s *MemoryStorage) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

func (s *MemoryStorage) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

func (s *MemoryStorage) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

const redisKeyPrefix = "console:state:"

// RedisStorage keeps state in Redis so any console replica can serve a browser.
// Keys are refreshed with expiry on every save.
type RedisStorage struct {
	client redis.UniversalClient
	expiry time.Duration
}

func NewRedisStorage(client redis.UniversalClient, expiry time.Duration) *RedisStorage {
	return &RedisStorage{client: client, expiry: expiry}
}

func (s *RedisStorage) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(err, "RedisStorage.Load")
	}
	return v, true, nil
}

func (s *RedisStorage) Save(ctx context.Context, key string, value []byte) error {
	return errors.Wrap(s.client.Set(ctx, redisKeyPrefix+key, value, s.expiry).Err(), "RedisStorage.Save")
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	return errors.Wrap(s.client.Del(ctx, redisKeyPrefix+key).Err(), "RedisStorage.Delete")
}

type scoped struct {
	storage Storage
	prefix  string
}

// Scoped returns a view of storage confined to one console session
func Scoped(storage Storage, sessionID string) Storage {
	return &scoped{storage: storage, prefix: sessionID + ":"}
}

func (s *scoped) Load(ctx context.Context, key string) ([]byte, bool, error) {
	return s.storage.Load(ctx, s.prefix+key)
}

func (s *scoped) Save(ctx context.Context, key string, value []byte) error {
	return s.storage.Save(ctx, s.prefix+key, value)
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, s.prefix+key)
}

package reportcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nerrad567/fieldgate/internal/device"
	"github.com/nerrad567/fieldgate/internal/infrastructure/config"
)

// RedisClient is the subset of the go-redis client RedisStore uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// RedisStore keeps the report set as one JSON value under a single key.
// The key expires after the retention window, so a gateway that stays down
// longer than that starts empty.
type RedisStore struct {
	client RedisClient
	key    string
	ttl    time.Duration
}

// NewRedisStore returns a store on client.
func NewRedisStore(client RedisClient, key string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, key: key, ttl: ttl}
}

// DialRedis connects to the configured Redis server and pings it.
func DialRedis(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     4,
		MinIdleConns: 1,
		MaxRetries:   3,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close() //nolint:errcheck // Already failing
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Load reads the key. A missing key is an empty set.
func (s *RedisStore) Load(ctx context.Context) ([]device.Report, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading redis key %s: %w", s.key, err)
	}

	var reports []device.Report
	if err := json.Unmarshal(data, &reports); err != nil {
		return nil, fmt.Errorf("parsing redis key %s: %w", s.key, err)
	}
	return reports, nil
}

// Save replaces the key and resets its TTL.
func (s *RedisStore) Save(ctx context.Context, reports []device.Report) error {
	if reports == nil {
		reports = []device.Report{}
	}
	data, err := json.Marshal(reports)
	if err != nil {
		return fmt.Errorf("encoding reports: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("writing redis key %s: %w", s.key, err)
	}
	return nil
}

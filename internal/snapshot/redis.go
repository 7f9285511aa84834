package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey is used when no key is configured.
const DefaultRedisKey = "pursuit:snapshot"

// RedisConfig describes the connection of a RedisBackend.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
	Key      string
	TTL      time.Duration // 0 keeps the snapshot forever
}

// RedisBackend keeps the snapshot as a single string value, so several hosts
// can resume the same run.
type RedisBackend struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

// NewRedisBackend connects and pings the server.
func NewRedisBackend(ctx context.Context, cfg RedisConfig) (*RedisBackend, error) {
	if cfg.Address == "" {
		return nil, errors.New("redis address is required")
	}
	key := cfg.Key
	if key == "" {
		key = DefaultRedisKey
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisBackend{client: client, key: key, ttl: cfg.TTL}, nil
}

// Key returns the key the snapshot is stored under.
func (b *RedisBackend) Key() string {
	return b.key
}

// Save overwrites the stored snapshot.
func (b *RedisBackend) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := b.client.Set(ctx, b.key, data, b.ttl).Err(); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Load fetches the stored snapshot. ErrNotFound is returned when the key is absent.
func (b *RedisBackend) Load(ctx context.Context) (*Snapshot, error) {
	data, err := b.client.Get(ctx, b.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load snapshot: %w", err)
	}
	return Decode(data)
}

// Close closes the client connection.
func (b *RedisBackend) Close() error {
	if b == nil || b.client == nil {
		return nil
	}
	return b.client.Close()
}

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "demandcast:model:"

// RedisStore implements Store on Redis. It enables multi-instance
// deployments by sharing artifacts across replicas, with optional TTL-based
// expiration of stale models.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	mu     sync.Mutex
}

// NewRedisStore creates a Redis-backed artifact store and verifies the
// connection.
//
// ttl is the artifact expiration duration; 0 keeps artifacts until they are
// deleted or replaced.
func NewRedisStore(addr, password string, db int, ttl time.Duration) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("redis address cannot be empty")
	}
	if db < 0 {
		return nil, errors.New("redis database number must be >= 0")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}

	return &RedisStore{
		client: client,
		ttl:    ttl,
	}, nil
}

// Put stores an artifact under "demandcast:model:{sku}".
func (r *RedisStore) Put(ctx context.Context, artifact Artifact) error {
	if err := validateSKU(artifact.SKU); err != nil {
		return err
	}

	data, err := json.Marshal(artifact)
	if err != nil {
		return fmt.Errorf("failed to marshal artifact: %w", err)
	}

	if err := r.client.Set(ctx, redisKeyPrefix+artifact.SKU, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store artifact in redis: %w", err)
	}

	return nil
}

// Get retrieves the artifact for a SKU. found is false when the key is
// absent or expired.
func (r *RedisStore) Get(ctx context.Context, sku string) (Artifact, bool, error) {
	if sku == "" {
		return Artifact{}, false, errors.New("sku required")
	}

	data, err := r.client.Get(ctx, redisKeyPrefix+sku).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Artifact{}, false, nil
		}
		return Artifact{}, false, fmt.Errorf("failed to get artifact from redis: %w", err)
	}

	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return Artifact{}, false, fmt.Errorf("failed to unmarshal artifact: %w", err)
	}

	return artifact, true, nil
}

// List scans the keyspace for stored artifacts and returns their listing
// views. SCAN is used rather than KEYS so a large model catalog does not
// block the server.
func (r *RedisStore) List(ctx context.Context) ([]Info, error) {
	var infos []Info

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		sku := strings.TrimPrefix(iter.Val(), redisKeyPrefix)

		artifact, found, err := r.Get(ctx, sku)
		if err != nil {
			return nil, err
		}
		if !found {
			// Expired between SCAN and GET.
			continue
		}
		infos = append(infos, artifact.info())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan artifacts in redis: %w", err)
	}

	return infos, nil
}

// Delete removes the artifact for a SKU. Returns ErrNotFound when no key
// was removed.
func (r *RedisStore) Delete(ctx context.Context, sku string) error {
	if sku == "" {
		return errors.New("sku required")
	}

	removed, err := r.client.Del(ctx, redisKeyPrefix+sku).Result()
	if err != nil {
		return fmt.Errorf("failed to delete artifact from redis: %w", err)
	}
	if removed == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the Redis client connection. Safe to call multiple times.
func (r *RedisStore) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.client == nil {
		return nil
	}

	err := r.client.Close()
	r.client = nil
	if err != nil && err.Error() == "redis: client is closed" {
		return nil
	}

	return err
}

// Ping checks the Redis connection health.
func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/dnws-project/dnws-go/pkg/logger"
)

const (
	defaultRedisAddr = "redis:6379"
	redisOpTimeout   = 5 * time.Second
)

// RedisStoreProvider keeps each store in a Redis hash named after the store.
type RedisStoreProvider struct {
	addr     string
	password string
	db       int
	expiry   time.Duration
	keys     keyPrefixer

	client *redis.Client
}

func (p *RedisStoreProvider) InitStores() error {
	if p.addr == "" {
		p.addr = defaultRedisAddr
	}
	p.client = redis.NewClient(&redis.Options{
		Addr:     p.addr,
		Password: p.password,
		DB:       p.db,
	})

	ctx, cancel := p.opContext()
	defer cancel()
	if err := p.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis at %s: %w", p.addr, err)
	}
	logger.Infof("using redis store at %s", p.addr)
	return nil
}

func (p *RedisStoreProvider) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), redisOpTimeout)
}

func (p *RedisStoreProvider) GetValue(storeName, key string) (interface{}, bool) {
	ctx, cancel := p.opContext()
	defer cancel()

	val, err := p.client.HGet(ctx, storeName, p.keys.apply(key)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false
	} else if err != nil {
		logger.Errorf("failed to get item: %v", err)
		return nil, false
	}
	return decodeRedisValue(val), true
}

func (p *RedisStoreProvider) StoreValue(storeName, key string, value interface{}) {
	ctx, cancel := p.opContext()
	defer cancel()

	valueBytes, err := json.Marshal(value)
	if err != nil {
		logger.Errorf("failed to marshal value: %v", err)
		return
	}
	if err := p.client.HSet(ctx, storeName, p.keys.apply(key), valueBytes).Err(); err != nil {
		logger.Errorf("failed to set item: %v", err)
		return
	}
	p.touch(ctx, storeName)
}

func (p *RedisStoreProvider) GetAllValues(storeName, keyPrefix string) map[string]interface{} {
	ctx, cancel := p.opContext()
	defer cancel()

	keyPrefix = p.keys.apply(keyPrefix)
	items := make(map[string]interface{})
	vals, err := p.client.HGetAll(ctx, storeName).Result()
	if err != nil {
		logger.Errorf("failed to get items: %v", err)
		return items
	}
	for key, val := range vals {
		if strings.HasPrefix(key, keyPrefix) {
			items[p.keys.remove(key)] = decodeRedisValue(val)
		}
	}
	return items
}

func (p *RedisStoreProvider) DeleteValue(storeName, key string) {
	ctx, cancel := p.opContext()
	defer cancel()

	if err := p.client.HDel(ctx, storeName, p.keys.apply(key)).Err(); err != nil {
		logger.Errorf("failed to delete item: %v", err)
	}
}

func (p *RedisStoreProvider) DeleteStore(storeName string) {
	ctx, cancel := p.opContext()
	defer cancel()

	if err := p.client.Del(ctx, storeName).Err(); err != nil {
		logger.Errorf("failed to delete store: %v", err)
	}
}

// Increment uses HINCRBY, so concurrent servers sharing one Redis never lose counts.
func (p *RedisStoreProvider) Increment(storeName, key string, delta int64) (int64, error) {
	ctx, cancel := p.opContext()
	defer cancel()

	n, err := p.client.HIncrBy(ctx, storeName, p.keys.apply(key), delta).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s/%s: %w", storeName, key, err)
	}
	p.touch(ctx, storeName)
	return n, nil
}

// touch refreshes the store's expiry when one is configured.
func (p *RedisStoreProvider) touch(ctx context.Context, storeName string) {
	if p.expiry <= 0 {
		return
	}
	if err := p.client.Expire(ctx, storeName, p.expiry).Err(); err != nil {
		logger.Errorf("failed to set expiration: %v", err)
	}
}

// Close releases the underlying connection pool.
func (p *RedisStoreProvider) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}

// decodeRedisValue reverses the JSON encoding used by StoreValue. Counters
// written by HINCRBY are bare integers, which also decode as JSON numbers.
func decodeRedisValue(val string) interface{} {
	var value interface{}
	if err := json.Unmarshal([]byte(val), &value); err != nil {
		return val
	}
	return value
}

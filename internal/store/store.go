package store

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/dnws-project/dnws-go/internal/config"
	"github.com/dnws-project/dnws-go/pkg/logger"
)

// ErrUnknownDriver is returned for an unrecognised store driver name.
var ErrUnknownDriver = errors.New("unknown store driver")

// StoreProvider interface defines the contract for store implementations.
// Implementations must be safe for concurrent use: plugins share one provider
// across every connection.
type StoreProvider interface {
	InitStores() error
	GetValue(storeName, key string) (interface{}, bool)
	StoreValue(storeName, key string, value interface{})
	GetAllValues(storeName, keyPrefix string) map[string]interface{}
	DeleteValue(storeName, key string)
	DeleteStore(storeName string)

	// Increment atomically adds delta to a numeric value, creating it at
	// zero first if needed, and returns the new value.
	Increment(storeName, key string, delta int64) (int64, error)
}

// Store represents a handle to a specific named store
type Store struct {
	name     string
	provider StoreProvider
}

// Open returns a handle to a specific store
func Open(storeName string, provider StoreProvider) *Store {
	return &Store{
		name:     storeName,
		provider: provider,
	}
}

// Name returns the store name.
func (s *Store) Name() string {
	return s.name
}

// GetValue retrieves a value from the store
func (s *Store) GetValue(key string) (interface{}, bool) {
	return s.provider.GetValue(s.name, key)
}

// StoreValue stores a value in the store
func (s *Store) StoreValue(key string, value interface{}) {
	s.provider.StoreValue(s.name, key, value)
}

// GetAllValues retrieves all values from the store with an optional prefix
func (s *Store) GetAllValues(keyPrefix string) map[string]interface{} {
	return s.provider.GetAllValues(s.name, keyPrefix)
}

// GetAllCounters returns every numeric value with the given key prefix as an
// int64. Values that are not counters are skipped.
func (s *Store) GetAllCounters(keyPrefix string) map[string]int64 {
	values := s.provider.GetAllValues(s.name, keyPrefix)
	counters := make(map[string]int64, len(values))
	for k, v := range values {
		n, err := toInt64(v)
		if err != nil {
			logger.Warnf("skipping non-counter %s in store %s: %v", k, s.name, err)
			continue
		}
		counters[k] = n
	}
	return counters
}

// DeleteValue removes a value from the store
func (s *Store) DeleteValue(key string) {
	s.provider.DeleteValue(s.name, key)
}

// Increment adds delta to a counter and returns the new value.
func (s *Store) Increment(key string, delta int64) (int64, error) {
	return s.provider.Increment(s.name, key, delta)
}

// Clear removes the entire store
func (s *Store) Clear() {
	s.provider.DeleteStore(s.name)
}

// NewStoreProvider builds and initialises the provider selected by cfg.Driver.
func NewStoreProvider(cfg config.StoreConfig) (StoreProvider, error) {
	var provider StoreProvider
	prefix := keyPrefixer{prefix: cfg.KeyPrefix}

	switch strings.ToLower(cfg.Driver) {
	case "", "inmemory", "store-inmemory":
		provider = NewInMemoryStoreProvider(prefix.prefix)
	case "redis", "store-redis":
		provider = &RedisStoreProvider{
			addr:     cfg.RedisAddr,
			password: cfg.RedisPassword,
			db:       cfg.RedisDB,
			expiry:   cfg.RedisExpiry.Std(),
			keys:     prefix,
		}
	case "dynamodb", "store-dynamodb":
		provider = &DynamoDBStoreProvider{
			tableName: cfg.DynamoDBTable,
			region:    cfg.AWSRegion,
			keys:      prefix,
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDriver, cfg.Driver)
	}

	if err := provider.InitStores(); err != nil {
		return nil, fmt.Errorf("failed to initialise %s store: %w", cfg.Driver, err)
	}
	logger.Debugf("initialised store provider: %s", cfg.Driver)
	return provider, nil
}

type keyPrefixer struct {
	prefix string
}

func (k keyPrefixer) apply(key string) string {
	if k.prefix != "" {
		return k.prefix + "." + key
	}
	return key
}

func (k keyPrefixer) remove(key string) string {
	if k.prefix != "" {
		return strings.TrimPrefix(key, k.prefix+".")
	}
	return key
}

// toInt64 converts stored counter representations into an int64.
func toInt64(value interface{}) (int64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("value %q is not numeric: %w", v, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("value of type %T is not numeric", value)
	}
}

package store

import (
	"fmt"
	"strings"
	"sync"
)

type InMemoryStoreProvider struct {
	mu     sync.RWMutex
	stores map[string]*storeData
	keys   keyPrefixer
}

type storeData struct {
	data map[string]interface{}
}

// NewInMemoryStoreProvider creates an in-process provider. Values are lost on exit.
func NewInMemoryStoreProvider(keyPrefix string) *InMemoryStoreProvider {
	return &InMemoryStoreProvider{keys: keyPrefixer{prefix: keyPrefix}}
}

func (p *InMemoryStoreProvider) InitStores() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stores = make(map[string]*storeData)
	return nil
}

func (p *InMemoryStoreProvider) GetValue(storeName, key string) (interface{}, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	store, ok := p.stores[storeName]
	if !ok {
		return nil, false
	}
	val, found := store.data[p.keys.apply(key)]
	return val, found
}

func (p *InMemoryStoreProvider) StoreValue(storeName, key string, value interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.storeLocked(storeName).data[p.keys.apply(key)] = value
}

func (p *InMemoryStoreProvider) GetAllValues(storeName, keyPrefix string) map[string]interface{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	store, ok := p.stores[storeName]
	if !ok {
		return map[string]interface{}{}
	}
	result := make(map[string]interface{})
	keyPrefix = p.keys.apply(keyPrefix)
	for k, v := range store.data {
		if strings.HasPrefix(k, keyPrefix) {
			result[p.keys.remove(k)] = v
		}
	}
	return result
}

func (p *InMemoryStoreProvider) DeleteValue(storeName, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if store, ok := p.stores[storeName]; ok {
		delete(store.data, p.keys.apply(key))
	}
}

func (p *InMemoryStoreProvider) DeleteStore(storeName string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.stores, storeName)
}

func (p *InMemoryStoreProvider) Increment(storeName, key string, delta int64) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	store := p.storeLocked(storeName)
	key = p.keys.apply(key)

	current, err := toInt64(store.data[key])
	if err != nil {
		return 0, fmt.Errorf("failed to increment %s/%s: %w", storeName, key, err)
	}
	current += delta
	store.data[key] = current
	return current, nil
}

// storeLocked returns the named store, creating it. Callers hold p.mu for writing.
func (p *InMemoryStoreProvider) storeLocked(storeName string) *storeData {
	if p.stores == nil {
		p.stores = make(map[string]*storeData)
	}
	store, ok := p.stores[storeName]
	if !ok {
		store = &storeData{data: make(map[string]interface{})}
		p.stores[storeName] = store
	}
	return store
}

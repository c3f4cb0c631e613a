package memstore

import (
	"context"
	"sync"

	"github.com/jrsteele09/flashybank-client/storage"
)

var _ storage.Store = (*MemStore)(nil)

type MemStore struct {
	values map[string]string
	lock   sync.RWMutex
}

func New() *MemStore {
	return &MemStore{
		values: make(map[string]string),
	}
}

func (ms *MemStore) Get(_ context.Context, key string) (string, error) {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	v, ok := ms.values[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

func (ms *MemStore) Set(_ context.Context, key, value string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	ms.values[key] = value
	return nil
}

func (ms *MemStore) Delete(_ context.Context, key string) error {
	ms.lock.Lock()
	defer ms.lock.Unlock()

	delete(ms.values, key)
	return nil
}

// Keys returns a snapshot of the stored keys, used by tests to assert what
// was persisted.
func (ms *MemStore) Keys() []string {
	ms.lock.RLock()
	defer ms.lock.RUnlock()

	keys := make([]string, 0, len(ms.values))
	for k := range ms.values {
		keys = append(keys, k)
	}
	return keys
}

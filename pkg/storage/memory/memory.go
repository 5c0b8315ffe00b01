// Package memory provides an in-memory storage adapter used for testing and
// development.
package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/lexlapax/agentdb/pkg/log"
)

// MemoryStore is an in-memory implementation of the storage.Store and
// storage.Scanner interfaces. It is safe for concurrent use.
type MemoryStore struct {
	values map[string][]byte
	mutex  sync.RWMutex
}

// NewMemoryStore creates a new instance of the MemoryStore.
func NewMemoryStore() *MemoryStore {
	store := &MemoryStore{
		values: make(map[string][]byte),
	}

	log.Debug("Initialized in-memory storage adapter")
	return store
}

// Put implements the storage.Store interface.
func (m *MemoryStore) Put(ctx context.Context, key, value []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	// Copy so later mutation of the caller's slice cannot corrupt the store
	buf := make([]byte, len(value))
	copy(buf, value)
	m.values[string(key)] = buf
	return nil
}

// Get implements the storage.Store interface.
func (m *MemoryStore) Get(ctx context.Context, key []byte) ([]byte, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	value, ok := m.values[string(key)]
	if !ok {
		return nil, nil
	}

	buf := make([]byte, len(value))
	copy(buf, value)
	return buf, nil
}

// Delete implements the storage.Store interface.
func (m *MemoryStore) Delete(ctx context.Context, key []byte) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.values, string(key))
	return nil
}

// ScanPrefix implements the storage.Scanner interface.
func (m *MemoryStore) ScanPrefix(ctx context.Context, prefix []byte, fn func(key, value []byte) error) error {
	m.mutex.RLock()
	keys := make([]string, 0, len(m.values))
	for k := range m.values {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	m.mutex.RUnlock()

	sort.Strings(keys)

	for _, k := range keys {
		m.mutex.RLock()
		value, ok := m.values[k]
		m.mutex.RUnlock()
		if !ok {
			continue
		}
		if err := fn([]byte(k), value); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of stored keys.
func (m *MemoryStore) Len() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return len(m.values)
}

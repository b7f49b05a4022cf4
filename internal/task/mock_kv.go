package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/brandsync/brandsync-api/internal/store"
)

// MockKV implements the store.KV interface in memory for testing.
// Individual operations can be overridden to inject failures.
type MockKV struct {
	mutex sync.RWMutex
	data  map[string][]byte

	GetFn    func(ctx context.Context, key string) ([]byte, error)
	SetFn    func(ctx context.Context, key string, value []byte) error
	DeleteFn func(ctx context.Context, key string) error
}

// NewMockKV creates a new MockKV with default in-memory behavior.
func NewMockKV() *MockKV {
	return &MockKV{
		data: make(map[string][]byte),
	}
}

// Get returns the stored document or store.ErrKeyNotFound.
func (m *MockKV) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetFn != nil {
		return m.GetFn(ctx, key)
	}

	m.mutex.RLock()
	defer m.mutex.RUnlock()

	value, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrKeyNotFound, key)
	}
	return append([]byte(nil), value...), nil
}

// Set stores the document under key.
func (m *MockKV) Set(ctx context.Context, key string, value []byte) error {
	if m.SetFn != nil {
		return m.SetFn(ctx, key, value)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Delete removes the document under key.
func (m *MockKV) Delete(ctx context.Context, key string) error {
	if m.DeleteFn != nil {
		return m.DeleteFn(ctx, key)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	delete(m.data, key)
	return nil
}

// Put seeds a raw document directly, bypassing any override.
func (m *MockKV) Put(key string, value []byte) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.data[key] = value
}

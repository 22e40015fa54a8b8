// Package storetest provides an in-memory Store implementation with
// call counting and fault injection for exercising the coordination
// layers without a live database.
package storetest

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mystira/storyvault/pkg/store"
)

// MockStore is a thread-safe in-memory Store. Errors can be injected
// per operation; every call is counted so tests can assert how many
// times a backend was touched.
type MockStore[T any, PT store.Entity[T]] struct {
	mu      sync.Mutex
	items   map[string]T
	updated map[string]time.Time

	// Injected errors, returned once set until cleared.
	CreateErr error
	GetErr    error
	UpdateErr error
	DeleteErr error
	ListErr   error

	// Call counters.
	CreateCalls int
	GetCalls    int
	UpdateCalls int
	DeleteCalls int
	ListCalls   int
}

func NewMockStore[T any, PT store.Entity[T]]() *MockStore[T, PT] {
	return &MockStore[T, PT]{
		items:   make(map[string]T),
		updated: make(map[string]time.Time),
	}
}

func (m *MockStore[T, PT]) Create(ctx context.Context, entity PT) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CreateCalls++
	if m.CreateErr != nil {
		return m.CreateErr
	}
	id := entity.EntityID()
	if _, ok := m.items[id]; ok {
		return store.ErrConflict
	}
	m.items[id] = *entity
	m.updated[id] = time.Now()
	return nil
}

func (m *MockStore[T, PT]) Get(ctx context.Context, id string) (PT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetCalls++
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	item, ok := m.items[id]
	if !ok {
		return nil, nil
	}
	cp := item
	return &cp, nil
}

func (m *MockStore[T, PT]) Update(ctx context.Context, entity PT) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpdateCalls++
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	id := entity.EntityID()
	m.items[id] = *entity
	m.updated[id] = time.Now()
	return nil
}

func (m *MockStore[T, PT]) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	delete(m.items, id)
	delete(m.updated, id)
	return nil
}

func (m *MockStore[T, PT]) List(ctx context.Context, filter store.Filter) ([]PT, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListCalls++
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := make([]PT, 0, len(m.items))
	ids := make([]string, 0, len(m.items))
	for id := range m.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		item := m.items[id]
		out = append(out, &item)
	}
	return out, nil
}

func (m *MockStore[T, PT]) ListModifiedIDs(ctx context.Context, since, until time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0)
	for id, ts := range m.updated {
		if !ts.Before(since) && ts.Before(until) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (m *MockStore[T, PT]) Close() error { return nil }

// Put seeds an entity directly, bypassing counters and fault injection.
func (m *MockStore[T, PT]) Put(entity PT) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[entity.EntityID()] = *entity
	m.updated[entity.EntityID()] = time.Now()
}

// Len reports how many entities are stored.
func (m *MockStore[T, PT]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

// Has reports whether an entity with the given ID is stored.
func (m *MockStore[T, PT]) Has(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.items[id]
	return ok
}

// Package testutil provides testing utilities for the order API.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/savoria-app/order-api/pkg/store"
)

// MockStore is a configurable DocumentStore for testing. It delegates
// to an in-memory store while tracking call counts and optionally
// injecting failures and latency.
type MockStore struct {
	inner *store.Memory

	mu        sync.Mutex
	callCount int
	failWith  error
	failNext  int
	delay     time.Duration
}

// NewMockStore creates a mock store backed by an empty memory store.
func NewMockStore() *MockStore {
	return &MockStore{
		inner: store.NewMemory(),
	}
}

// Seed inserts a document with a fixed id, bypassing tracking.
func (m *MockStore) Seed(collection, id string, doc any) {
	raw, _ := json.Marshal(doc)
	_ = m.inner.Batch(context.Background(), []store.BatchOp{
		{Kind: "add", Collection: collection, ID: id, Doc: raw},
	})
}

// FailWith makes every subsequent call return err until cleared with
// FailWith(nil).
func (m *MockStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
	m.failNext = 0
}

// FailNextWith makes only the next n calls return err.
func (m *MockStore) FailNextWith(err error, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWith = err
	m.failNext = n
}

// SetDelay adds latency to every call.
func (m *MockStore) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// CallCount returns the number of calls made to the store.
func (m *MockStore) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears tracking counters and injected behavior.
func (m *MockStore) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.failWith = nil
	m.failNext = 0
	m.delay = 0
}

// before records a call and returns the injected error, if any.
func (m *MockStore) before() error {
	m.mu.Lock()
	m.callCount++
	err := m.failWith
	if err != nil && m.failNext > 0 {
		m.failNext--
		if m.failNext == 0 {
			m.failWith = nil
		}
	}
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	return err
}

func (m *MockStore) Get(ctx context.Context, collection, id string) (json.RawMessage, error) {
	if err := m.before(); err != nil {
		return nil, err
	}
	return m.inner.Get(ctx, collection, id)
}

func (m *MockStore) Query(ctx context.Context, collection string, q store.Query) ([]json.RawMessage, error) {
	if err := m.before(); err != nil {
		return nil, err
	}
	return m.inner.Query(ctx, collection, q)
}

func (m *MockStore) Add(ctx context.Context, collection string, doc json.RawMessage) (string, error) {
	if err := m.before(); err != nil {
		return "", err
	}
	return m.inner.Add(ctx, collection, doc)
}

func (m *MockStore) Update(ctx context.Context, collection, id string, doc json.RawMessage) error {
	if err := m.before(); err != nil {
		return err
	}
	return m.inner.Update(ctx, collection, id, doc)
}

func (m *MockStore) Delete(ctx context.Context, collection, id string) error {
	if err := m.before(); err != nil {
		return err
	}
	return m.inner.Delete(ctx, collection, id)
}

func (m *MockStore) Batch(ctx context.Context, ops []store.BatchOp) error {
	if err := m.before(); err != nil {
		return err
	}
	return m.inner.Batch(ctx, ops)
}

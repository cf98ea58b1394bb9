// Package mock provides mock implementations of store interfaces for testing.
package mock

import (
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/kozaktomas/facegate/internal/store"
)

// MockIdentityStore is a mock implementation of store.IdentityWriter
type MockIdentityStore struct {
	mu         sync.RWMutex
	identities map[string]*store.Identity

	// Track calls
	PutCalls    []store.Identity
	DeleteCalls []string

	// Error injection
	GetError    error
	ListError   error
	CountError  error
	PutError    error
	DeleteError error
}

// NewMockIdentityStore creates a new mock identity store
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		identities: make(map[string]*store.Identity),
	}
}

// AddIdentity seeds an identity into the mock store
func (m *MockIdentityStore) AddIdentity(identity store.Identity) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[identity.EmployeeID] = &identity
}

// Get retrieves an identity by employee ID
func (m *MockIdentityStore) Get(ctx context.Context, employeeID string) (*store.Identity, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	identity, ok := m.identities[employeeID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

// List returns identities matching the query, ordered by employee ID
func (m *MockIdentityStore) List(ctx context.Context, query string) ([]store.Identity, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	normalized := store.NormalizeQuery(query)
	var results []store.Identity
	for _, identity := range m.identities {
		if normalized != "" &&
			!strings.Contains(store.NormalizeQuery(identity.EmployeeID), normalized) &&
			!strings.Contains(store.NormalizeQuery(identity.Name), normalized) {
			continue
		}
		results = append(results, *identity)
	}
	slices.SortFunc(results, func(a, b store.Identity) int {
		return strings.Compare(a.EmployeeID, b.EmployeeID)
	})
	return results, nil
}

// Count returns the number of enrolled identities
func (m *MockIdentityStore) Count(ctx context.Context) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.identities), nil
}

// Put stores an identity, replacing any previous enrollment
func (m *MockIdentityStore) Put(ctx context.Context, identity store.Identity) error {
	if m.PutError != nil {
		return m.PutError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PutCalls = append(m.PutCalls, identity)
	m.identities[identity.EmployeeID] = &identity
	return nil
}

// Delete removes an identity
func (m *MockIdentityStore) Delete(ctx context.Context, employeeID string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls = append(m.DeleteCalls, employeeID)
	if _, ok := m.identities[employeeID]; !ok {
		return store.ErrNotFound
	}
	delete(m.identities, employeeID)
	return nil
}

// Verify interface compliance
var _ store.IdentityWriter = (*MockIdentityStore)(nil)

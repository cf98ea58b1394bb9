package store

import (
	"context"
	"slices"
	"strings"
	"sync"
)

// MemoryStore keeps identities in process memory. It is the default backend;
// enrollments do not survive a restart.
type MemoryStore struct {
	mu         sync.RWMutex
	identities map[string]*Identity
}

// NewMemoryStore creates an empty in-memory identity store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		identities: make(map[string]*Identity),
	}
}

// copyIdentity clones an identity including its embedding, so callers can
// never alias the stored vector.
func copyIdentity(identity *Identity) *Identity {
	cp := *identity
	cp.Embedding = slices.Clone(identity.Embedding)
	return &cp
}

// Get retrieves an identity by employee ID.
func (s *MemoryStore) Get(ctx context.Context, employeeID string) (*Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	identity, ok := s.identities[employeeID]
	if !ok {
		return nil, ErrNotFound
	}
	return copyIdentity(identity), nil
}

// List returns matching identities ordered by employee ID.
func (s *MemoryStore) List(ctx context.Context, query string) ([]Identity, error) {
	normalized := NormalizeQuery(query)

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]Identity, 0, len(s.identities))
	for _, identity := range s.identities {
		if matchesQuery(identity, normalized) {
			result = append(result, *copyIdentity(identity))
		}
	}

	slices.SortFunc(result, func(a, b Identity) int {
		return strings.Compare(a.EmployeeID, b.EmployeeID)
	})

	return result, nil
}

// Count returns the number of enrolled identities.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.identities), nil
}

// Put stores an identity, replacing any previous enrollment for the same
// employee ID. The swap is atomic: readers see either the old or the new
// identity, never a mix.
func (s *MemoryStore) Put(ctx context.Context, identity Identity) error {
	cp := copyIdentity(&identity)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.identities[identity.EmployeeID] = cp
	return nil
}

// Delete removes an identity.
func (s *MemoryStore) Delete(ctx context.Context, employeeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.identities[employeeID]; !ok {
		return ErrNotFound
	}
	delete(s.identities, employeeID)
	return nil
}

// Verify interface compliance.
var _ IdentityWriter = (*MemoryStore)(nil)

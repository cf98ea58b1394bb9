// Package store persists enrolled face identities. One identity per
// employee ID; re-enrollment replaces the previous embedding wholesale.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no identity exists for the requested employee ID.
var ErrNotFound = errors.New("identity not found")

// Identity is one enrolled person.
type Identity struct {
	EmployeeID   string
	Name         string
	Embedding    []float32
	Dim          int
	Model        string  // embedding model the vector was produced with
	Metric       string  // distance metric the enrollment threshold assumed
	Quality      float64 // detector confidence of the enrolled face
	EnrollmentID string  // rotated on every (re-)enrollment
	ImageRef     string  // archive key of the enrollment photo, empty when archiving is off
	EnrolledAt   time.Time
}

// IdentityReader provides read-only access to enrolled identities.
type IdentityReader interface {
	// Get retrieves an identity by employee ID. Returns ErrNotFound when absent.
	Get(ctx context.Context, employeeID string) (*Identity, error)
	// List returns identities whose employee ID or name matches the query,
	// ordered by employee ID. Matching is case- and diacritic-insensitive.
	// An empty query returns everything.
	List(ctx context.Context, query string) ([]Identity, error)
	// Count returns the number of enrolled identities.
	Count(ctx context.Context) (int, error)
}

// IdentityWriter provides full access to enrolled identities.
type IdentityWriter interface {
	IdentityReader

	// Put stores an identity, atomically replacing any existing one with
	// the same employee ID.
	Put(ctx context.Context, identity Identity) error

	// Delete removes an identity. Returns ErrNotFound when absent.
	Delete(ctx context.Context, employeeID string) error
}

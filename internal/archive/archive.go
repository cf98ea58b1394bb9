// Package archive stores enrollment images so operators can audit which
// photo produced an employee's reference embedding. Verification images
// are never archived.
package archive

import (
	"context"
	"os"
)

// ErrNotFound is returned when an archived object does not exist.
//
// Implementations should return an error that satisfies `errors.Is(err, ErrNotFound)`.
// The default maps to `os.ErrNotExist`.
var ErrNotFound = os.ErrNotExist

// Store persists enrollment images under opaque keys.
type Store interface {
	// Put writes an object. Existing objects under the same key are replaced.
	Put(ctx context.Context, key string, data []byte, contentType string) error
	// Get reads an object, returning ErrNotFound when it does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	// Remove deletes an object. Removing a missing object is not an error.
	Remove(ctx context.Context, key string) error
}

// Disabled is the no-op archive used when archival is turned off.
type Disabled struct{}

func (Disabled) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return nil
}

func (Disabled) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrNotFound
}

func (Disabled) Remove(ctx context.Context, key string) error {
	return nil
}

var _ Store = Disabled{}

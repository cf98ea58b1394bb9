// Package mock provides a mock extractor for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/facegate/internal/embedding"
)

// MockExtractor is a mock implementation of embedding.Extractor
type MockExtractor struct {
	mu sync.Mutex

	// Result is returned for every Extract call unless ResultByImage has an
	// entry keyed by the exact image payload.
	Result        *embedding.Result
	ResultByImage map[string]*embedding.Result

	// Error injection
	ExtractError error
	PingError    error

	// Delay is applied before Extract returns, for timeout tests.
	Delay time.Duration

	Model string

	// Call tracking
	ExtractCalls int
	PingCalls    int
}

// NewMockExtractor creates a mock that returns the given result.
func NewMockExtractor(result *embedding.Result) *MockExtractor {
	return &MockExtractor{
		Result:        result,
		ResultByImage: make(map[string]*embedding.Result),
		Model:         "sface",
	}
}

// SetResultFor returns a specific result for an exact image payload.
func (m *MockExtractor) SetResultFor(image []byte, result *embedding.Result) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResultByImage[string(image)] = result
}

// Extract returns the configured result or error.
func (m *MockExtractor) Extract(ctx context.Context, image []byte) (*embedding.Result, error) {
	m.mu.Lock()
	m.ExtractCalls++
	delay := m.Delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ExtractError != nil {
		return nil, m.ExtractError
	}

	if r, ok := m.ResultByImage[string(image)]; ok {
		return r, nil
	}

	return m.Result, nil
}

// Ping returns the configured ping error.
func (m *MockExtractor) Ping(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PingCalls++
	return m.PingError
}

// ModelName returns the configured model name.
func (m *MockExtractor) ModelName() string {
	return m.Model
}

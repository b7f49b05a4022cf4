package task

import (
	"context"
	"sync"

	"github.com/brandsync/brandsync-api/internal/domain"
)

// MockBackend implements the BackendClient interface for testing. Each
// accessor either plays back a scripted sequence of responses (the last
// entry repeats once the script runs out) or delegates to an override
// function.
type MockBackend struct {
	mutex sync.Mutex

	SearchStatusFn func(ctx context.Context, jobID string) (*SearchStatus, error)
	ImportStatusFn func(ctx context.Context, jobID string) (*ImportStatus, error)
	ProductsFn     func(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error)

	searchScript []scriptedResponse[*SearchStatus]
	importScript []scriptedResponse[*ImportStatus]

	searchCalls  int
	importCalls  int
	productCalls int
}

type scriptedResponse[T any] struct {
	value T
	err   error
}

// NewMockBackend creates a new MockBackend with empty scripts.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// ScriptSearch appends a search-status response to the playback script.
func (m *MockBackend) ScriptSearch(status *SearchStatus, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.searchScript = append(m.searchScript, scriptedResponse[*SearchStatus]{value: status, err: err})
}

// ScriptImport appends an import-status response to the playback script.
func (m *MockBackend) ScriptImport(status *ImportStatus, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.importScript = append(m.importScript, scriptedResponse[*ImportStatus]{value: status, err: err})
}

// SearchJobStatus plays back the search script.
func (m *MockBackend) SearchJobStatus(ctx context.Context, jobID string) (*SearchStatus, error) {
	if m.SearchStatusFn != nil {
		return m.SearchStatusFn(ctx, jobID)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.searchCalls++
	if len(m.searchScript) == 0 {
		return &SearchStatus{Status: JobStatusPending}, nil
	}
	return playback(m.searchScript, m.searchCalls)
}

// ImportJobStatus plays back the import script.
func (m *MockBackend) ImportJobStatus(ctx context.Context, jobID string) (*ImportStatus, error) {
	if m.ImportStatusFn != nil {
		return m.ImportStatusFn(ctx, jobID)
	}

	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.importCalls++
	if len(m.importScript) == 0 {
		return &ImportStatus{Status: JobStatusRunning}, nil
	}
	return playback(m.importScript, m.importCalls)
}

// ProductsByBrand returns an empty list unless overridden.
func (m *MockBackend) ProductsByBrand(ctx context.Context, brandID, status string, limit int) ([]domain.ProductSummary, error) {
	m.mutex.Lock()
	m.productCalls++
	m.mutex.Unlock()

	if m.ProductsFn != nil {
		return m.ProductsFn(ctx, brandID, status, limit)
	}
	return []domain.ProductSummary{}, nil
}

// SearchCalls returns how many search status checks were made.
func (m *MockBackend) SearchCalls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.searchCalls
}

// ImportCalls returns how many import status checks were made.
func (m *MockBackend) ImportCalls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.importCalls
}

// ProductCalls returns how many product lookups were made.
func (m *MockBackend) ProductCalls() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.productCalls
}

// playback returns the call-th scripted response, repeating the last
// entry once the script is exhausted.
func playback[T any](script []scriptedResponse[T], call int) (T, error) {
	if len(script) == 0 {
		var zero T
		return zero, nil
	}

	idx := call - 1
	if idx >= len(script) {
		idx = len(script) - 1
	}
	return script[idx].value, script[idx].err
}

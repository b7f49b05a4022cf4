package store

import "context"

// Well-known document keys for the task subsystem's persisted state.
// The active snapshot and the history log each live under a single
// fixed key as one serialized document.
const (
	KeyActiveTasks = "brand_import_tasks"
	KeyTaskHistory = "brand_import_task_history"
)

// KV is a synchronous document store keyed by well-known strings.
// Implementations persist whole serialized documents; readers get the
// last successfully written value. Implementations must be safe for
// concurrent use.
type KV interface {
	// Get returns the document stored under key.
	// Returns ErrKeyNotFound if no document exists for the key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the document under key, replacing any prior value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes the document stored under key.
	// Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}

// Package task implements the concurrent polling and durable-state
// subsystem that tracks long-running brand search and product import
// jobs.
//
// The Store persists the active-task snapshot and a bounded,
// id-deduplicated history log as serialized documents in a key-value
// store, tolerating corruption and process restarts. The PollScheduler
// owns independent, cancellable poll loops (one per task and phase)
// that query remote status accessors until a terminal state, a
// stuck-task timeout, or attempt-budget exhaustion, pushing updates
// into the Store and into caller-supplied callbacks. On startup,
// ResumePolling reconstructs loops from the persisted snapshot.
package task

// Package postgres provides PostgreSQL-specific implementations for the
// storage interfaces defined in the internal/store package. The task
// subsystem persists its state as serialized documents in a single
// app_state key-value table; this package handles query execution and
// error mapping for that table.
package postgres

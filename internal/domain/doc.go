// Package domain contains the core entities of the brand import
// subsystem: the import task record with its status state machine, and
// the product summaries a completed search materializes. Domain types
// carry their own validation and hold no references to storage,
// transport, or scheduling concerns.
package domain

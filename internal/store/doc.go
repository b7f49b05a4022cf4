// Package store defines the persistence interfaces and shared error
// types used by the task subsystem. Concrete implementations live in
// internal/platform; consumers depend only on the interfaces here.
package store

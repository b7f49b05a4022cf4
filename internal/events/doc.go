// Package events provides types and interfaces for task lifecycle
// notifications.
//
// The poll scheduler publishes task updates, terminal transitions, and
// ambient user-facing notices as events; subscribers (API layer, tests,
// future push transports) register handlers without the scheduler
// knowing about them. This keeps the notification surface decoupled
// from both the scheduler and any delivery mechanism.
package events

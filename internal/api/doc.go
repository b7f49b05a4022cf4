// Package api implements the HTTP handlers for task management:
// creating brand search tasks, starting imports, inspecting the active
// snapshot and history, and the operational recovery endpoints.
package api

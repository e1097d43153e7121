// Package api contains the HTTP transport layer: request/response models,
// handlers for authentication, tasks, messages and projects, and the mapping
// from internal errors to HTTP status codes. Handlers decode and validate
// input, delegate to the service layer and translate results back to JSON.
package api

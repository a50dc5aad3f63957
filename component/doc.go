// Package component defines the lifecycle contract shared by long-lived
// parts of gridstore, such as the GridFS storage and the HTTP server.
//
// Components are registered with a Registry, started in registration order
// and stopped in reverse order. Components that implement Describable are
// listed in the startup summary.
package component

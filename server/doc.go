// Package server runs the gin HTTP server that fronts the upload storage.
//
// The engine is mounted on a ServeMux wrapped in h2c, so the same port
// serves HTTP/1.1 and cleartext HTTP/2 clients. Server satisfies
// component.Component through ServerComponent and is started after the
// storage in the component registry.
//
// # Middleware
//
// server/middleware provides Recovery, RequestID, CORS, BodySizeLimit and
// RequestLogger as gin handlers. ApplyMiddleware installs all of them.
//
// # Endpoints
//
// server/endpoint provides /healthz, /livez, /readyz, /metrics and /version.
package server

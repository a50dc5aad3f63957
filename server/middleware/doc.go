// Package middleware provides the gin middleware installed by
// server.ApplyMiddleware.
package middleware

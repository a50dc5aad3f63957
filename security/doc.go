// Package security builds TLS configurations from file paths.
//
// One TLSConfig shape serves both sides: the database driver uses
// BuildClient to verify the server and present a client certificate, and
// the HTTP server uses BuildServer to terminate TLS, requiring client
// certificates signed by CAFile when it is set.
//
//	cfg := security.TLSConfig{CAFile: "/etc/gridstore/ca.pem"}
//	tlsConfig, err := cfg.BuildClient()
package security

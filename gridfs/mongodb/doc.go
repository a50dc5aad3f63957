// Package mongodb registers a GridFS driver for the "mongodb" and
// "mongodb+srv" URL schemes, backed by the official MongoDB Go driver.
//
// Import it for its side effect:
//
//	import _ "github.com/kbukum/gridstore/gridfs/mongodb"
//
// Files are written through the driver's GridFS upload streams. The
// content type and any metadata resolved after the stream opened are
// written to the files document when the upload closes. With unique
// content enabled, a SHA-256 of the bytes is stored as contentHash under a
// unique index, and a second file with the same bytes is removed and
// reported as a *gridfs.DuplicateKeyError.
//
// Existing clients can be used in handle or pending mode through Wrap.
package mongodb

// Package testutil provides an in-memory GridFS driver for tests.
//
// Importing the package registers the "mem" URL scheme, so a storage can be
// built from "mem://<database>". Databases are shared per driver and name;
// tests that need isolation build their own Driver or Database.
//
// Fault injection is explicit: a driver can fail every connect, a database
// can be closed before use, and writes can be made to fail.
package testutil

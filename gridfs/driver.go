package gridfs

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/kbukum/gridstore/provider"
	"github.com/kbukum/gridstore/security"
)

// ConnectOptions are passed to Driver.Connect in URL mode.
type ConnectOptions struct {
	// Database overrides the database named in the URL path.
	Database string
	// AppName is reported to the server when supported.
	AppName string
	// ConnectTimeout bounds the driver's own dial and handshake. Zero
	// leaves the driver default; Ready is bounded only by its context.
	ConnectTimeout time.Duration
	// TLS configures transport security for drivers that support it.
	TLS *security.TLSConfig
	// Extra carries driver-specific options, also handed to the driver
	// factory when the driver is looked up by scheme.
	Extra map[string]any
}

// Driver dials a database from a connection URL.
type Driver interface {
	provider.Provider
	Connect(ctx context.Context, url string, opts ConnectOptions) (Database, error)
}

// Database is an open handle to a database holding GridFS buckets.
type Database interface {
	Name() string
	// IsOpen reports whether the handle can be used.
	IsOpen(ctx context.Context) bool
	// Bucket returns a bucket handle. It does not touch the server.
	Bucket(opts BucketOptions) (Bucket, error)
	Close(ctx context.Context) error
}

// BucketOptions select a bucket.
type BucketOptions struct {
	Name      string
	ChunkSize int32
}

// Bucket stores files as chunk documents plus one files document.
type Bucket interface {
	Name() string
	OpenUploadStream(ctx context.Context, opts UploadOptions) (UploadStream, error)
	Delete(ctx context.Context, id any) error
}

// UploadOptions describe a new file. A nil ID asks the driver to generate one.
type UploadOptions struct {
	ID          any
	Filename    string
	ContentType string
	ChunkSize   int32
	Metadata    map[string]any
}

// UploadStream receives a file's bytes. Exactly one of Close or Abort
// ends it; Abort after a failed Close is a no-op.
type UploadStream interface {
	io.Writer
	// FileID returns the id of the file being written.
	FileID() any
	// Size returns the number of bytes accepted so far.
	Size() int64
	// Close finalizes the file. A non-nil final replaces the filename,
	// content type and metadata given when the stream was opened.
	Close(ctx context.Context, final *UploadOptions) error
	// Abort discards everything written.
	Abort(ctx context.Context) error
}

var drivers = provider.NewRegistry[Driver]()

// RegisterDriver registers a driver factory for a URL scheme. Driver
// packages call it from init.
func RegisterDriver(scheme string, factory provider.Factory[Driver]) {
	drivers.RegisterFactory(strings.ToLower(scheme), factory)
}

// Drivers returns the registered URL schemes.
func Drivers() []string {
	return drivers.List()
}

// DriverFor returns a driver for the scheme of rawURL.
func DriverFor(rawURL string, opts ConnectOptions) (Driver, error) {
	scheme, err := schemeOf(rawURL)
	if err != nil {
		return nil, err
	}
	if !drivers.Has(scheme) {
		return nil, fmt.Errorf("%w %q (registered: %v)", ErrNoDriver, scheme, drivers.List())
	}
	return drivers.Create(scheme, opts.Extra)
}

func schemeOf(rawURL string) (string, error) {
	i := strings.Index(rawURL, "://")
	if i <= 0 {
		return "", invalidConfig("url %q has no scheme", rawURL)
	}
	return strings.ToLower(rawURL[:i]), nil
}

// DatabaseName extracts the database name from a connection URL path,
// falling back to def. Multi-host URLs are accepted.
func DatabaseName(rawURL, def string) string {
	rest := rawURL
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	slash := strings.Index(rest, "/")
	if slash < 0 {
		return def
	}
	path := rest[slash+1:]
	if q := strings.IndexAny(path, "?#"); q >= 0 {
		path = path[:q]
	}
	name, err := url.PathUnescape(path)
	if err != nil || name == "" {
		return def
	}
	return name
}

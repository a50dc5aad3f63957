package testutil

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	sha256 "github.com/minio/sha256-simd"

	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/provider"
)

// Scheme is the URL scheme served by this package.
const Scheme = "mem"

func init() {
	gridfs.RegisterDriver(Scheme, func(cfg map[string]any) (gridfs.Driver, error) {
		var opts []Option
		if provider.Bool(cfg, gridfs.OptionUniqueContent, false) {
			opts = append(opts, WithUniqueContent())
		}
		return NewDriver(opts...), nil
	})
}

// Option configures a Driver or Database.
type Option func(*options)

type options struct {
	unique     bool
	connectErr error
	writeErr   error
	openErr    error
}

// WithUniqueContent rejects a file whose bytes match a stored file in the
// same bucket, the way a unique index on a content hash would.
func WithUniqueContent() Option {
	return func(o *options) { o.unique = true }
}

// WithConnectError makes every Connect fail with err.
func WithConnectError(err error) Option {
	return func(o *options) { o.connectErr = err }
}

// WithWriteError makes every stream Write fail with err.
func WithWriteError(err error) Option {
	return func(o *options) { o.writeErr = err }
}

// WithOpenError makes every OpenUploadStream fail with err.
func WithOpenError(err error) Option {
	return func(o *options) { o.openErr = err }
}

// Driver connects to in-memory databases.
type Driver struct {
	opts     options
	mu       sync.Mutex
	dbs      map[string]*Database
	connects atomic.Int32
}

var _ gridfs.Driver = (*Driver)(nil)

// NewDriver creates a driver.
func NewDriver(opts ...Option) *Driver {
	d := &Driver{dbs: make(map[string]*Database)}
	for _, opt := range opts {
		opt(&d.opts)
	}
	return d
}

func (d *Driver) Name() string                       { return Scheme }
func (d *Driver) IsAvailable(_ context.Context) bool { return d.opts.connectErr == nil }

// Connects returns the number of Connect calls.
func (d *Driver) Connects() int { return int(d.connects.Load()) }

// Connect returns the database named by opts or the URL, creating it on first use.
func (d *Driver) Connect(ctx context.Context, url string, opts gridfs.ConnectOptions) (gridfs.Database, error) {
	d.connects.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d.opts.connectErr != nil {
		return nil, d.opts.connectErr
	}

	name := opts.Database
	if name == "" {
		name = gridfs.DatabaseName(url, "")
	}
	if name == "" {
		name = hostOf(url)
	}
	if name == "" {
		name = "test"
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	db, ok := d.dbs[name]
	if !ok || !db.open.Load() {
		db = newDatabase(name, d.opts)
		d.dbs[name] = db
	}
	return db, nil
}

func hostOf(url string) string {
	rest := url
	if i := len(Scheme) + 3; len(rest) >= i && rest[:i] == Scheme+"://" {
		rest = rest[i:]
	}
	for i, r := range rest {
		if r == '/' || r == '?' {
			return rest[:i]
		}
	}
	return rest
}

// StoredFile is a finalized file.
type StoredFile struct {
	ID          any
	Filename    string
	ContentType string
	ChunkSize   int32
	Metadata    map[string]any
	Data        []byte
	Chunks      int
	ContentHash string
	UploadDate  time.Time
}

// Database is an in-memory database of buckets.
type Database struct {
	name  string
	opts  options
	open  atomic.Bool
	mu    sync.Mutex
	files map[string][]*StoredFile
}

var _ gridfs.Database = (*Database)(nil)

// NewDatabase creates an open database.
func NewDatabase(name string, opts ...Option) *Database {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	return newDatabase(name, o)
}

func newDatabase(name string, o options) *Database {
	db := &Database{name: name, opts: o, files: make(map[string][]*StoredFile)}
	db.open.Store(true)
	return db
}

func (db *Database) Name() string                  { return db.name }
func (db *Database) IsOpen(_ context.Context) bool { return db.open.Load() }

// Close marks the database closed. Stored files are kept for inspection.
func (db *Database) Close(_ context.Context) error {
	db.open.Store(false)
	return nil
}

// Bucket returns a bucket handle.
func (db *Database) Bucket(opts gridfs.BucketOptions) (gridfs.Bucket, error) {
	if opts.Name == "" {
		return nil, fmt.Errorf("mem: bucket name is required")
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = gridfs.DefaultChunkSize
	}
	return &Bucket{db: db, name: opts.Name, chunkSize: chunk}, nil
}

// Files returns the files stored in a bucket, oldest first.
func (db *Database) Files(bucket string) []*StoredFile {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := append([]*StoredFile(nil), db.files[bucket]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].UploadDate.Before(out[j].UploadDate) })
	return out
}

// File returns a stored file by id.
func (db *Database) File(bucket string, id any) (*StoredFile, bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for _, f := range db.files[bucket] {
		if f.ID == id {
			return f, true
		}
	}
	return nil, false
}

// Bucket is a named bucket in a Database.
type Bucket struct {
	db        *Database
	name      string
	chunkSize int32
}

var _ gridfs.Bucket = (*Bucket)(nil)

func (b *Bucket) Name() string { return b.name }

// OpenUploadStream starts a file. Ids default to random UUID strings.
func (b *Bucket) OpenUploadStream(ctx context.Context, opts gridfs.UploadOptions) (gridfs.UploadStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.db.open.Load() {
		return nil, &gridfs.StoreError{Op: "open", Err: fmt.Errorf("mem: database %s is closed", b.db.name)}
	}
	if b.db.opts.openErr != nil {
		return nil, b.db.opts.openErr
	}
	id := opts.ID
	if id == nil {
		id = uuid.NewString()
	}
	chunk := opts.ChunkSize
	if chunk <= 0 {
		chunk = b.chunkSize
	}
	return &Stream{
		bucket: b,
		id:     id,
		opts:   opts,
		chunk:  chunk,
		hash:   sha256.New(),
	}, nil
}

// Delete removes a file by id.
func (b *Bucket) Delete(_ context.Context, id any) error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	files := b.db.files[b.name]
	for i, f := range files {
		if f.ID == id {
			b.db.files[b.name] = append(files[:i:i], files[i+1:]...)
			return nil
		}
	}
	return &gridfs.StoreError{Op: "delete", Err: fmt.Errorf("mem: file %v not found", id)}
}

// Stream buffers a file until Close.
type Stream struct {
	bucket *Bucket
	id     any
	opts   gridfs.UploadOptions
	chunk  int32
	buf    bytes.Buffer
	hash   hash.Hash
	done   bool
}

var _ gridfs.UploadStream = (*Stream)(nil)

func (s *Stream) FileID() any { return s.id }
func (s *Stream) Size() int64 { return int64(s.buf.Len()) }

func (s *Stream) Write(p []byte) (int, error) {
	if s.done {
		return 0, fmt.Errorf("mem: write to finished stream")
	}
	if err := s.bucket.db.opts.writeErr; err != nil {
		return 0, err
	}
	s.hash.Write(p)
	return s.buf.Write(p)
}

// Close stores the file. With unique content enabled, the first of two
// identical files to close wins and the second gets a DuplicateKeyError.
func (s *Stream) Close(_ context.Context, final *gridfs.UploadOptions) error {
	if s.done {
		return nil
	}
	s.done = true

	opts := s.opts
	if final != nil {
		opts.Filename = final.Filename
		opts.ContentType = final.ContentType
		opts.Metadata = final.Metadata
	}
	sum := hex.EncodeToString(s.hash.Sum(nil))
	data := append([]byte(nil), s.buf.Bytes()...)
	chunks := (len(data) + int(s.chunk) - 1) / int(s.chunk)

	db := s.bucket.db
	db.mu.Lock()
	defer db.mu.Unlock()
	if !db.open.Load() {
		return &gridfs.StoreError{Op: "close", Err: fmt.Errorf("mem: database %s is closed", db.name)}
	}
	if db.opts.unique {
		for _, f := range db.files[s.bucket.name] {
			if f.ContentHash == sum {
				return &gridfs.DuplicateKeyError{
					Collection: db.name + "." + s.bucket.name + ".files",
					Index:      "contentHash_1",
					Key:        fmt.Sprintf("{ contentHash: %q }", sum),
				}
			}
		}
	}
	db.files[s.bucket.name] = append(db.files[s.bucket.name], &StoredFile{
		ID:          s.id,
		Filename:    opts.Filename,
		ContentType: opts.ContentType,
		ChunkSize:   s.chunk,
		Metadata:    opts.Metadata,
		Data:        data,
		Chunks:      chunks,
		ContentHash: sum,
		UploadDate:  time.Now(),
	})
	return nil
}

// Abort discards the buffered bytes.
func (s *Stream) Abort(_ context.Context) error {
	s.done = true
	s.buf.Reset()
	return nil
}

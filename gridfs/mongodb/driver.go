package mongodb

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	mgridfs "go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/provider"
)

// DefaultDatabase is used when neither the options nor the URL name one.
const DefaultDatabase = "test"

// Index names created on the files collection.
const (
	FieldContentHash = "contentHash"
	IndexContentHash = "contentHash_1"
)

func init() {
	factory := func(cfg map[string]any) (gridfs.Driver, error) {
		var opts []Option
		if provider.Bool(cfg, gridfs.OptionUniqueContent, false) {
			opts = append(opts, WithUniqueContent())
		}
		return NewDriver(opts...), nil
	}
	gridfs.RegisterDriver("mongodb", factory)
	gridfs.RegisterDriver("mongodb+srv", factory)
}

// Option configures a Driver or a wrapped Database.
type Option func(*settings)

type settings struct {
	unique bool
	log    *logger.Logger
}

func newSettings(opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.log == nil {
		s.log = logger.WithComponent("gridfs.mongodb")
	}
	return s
}

// WithUniqueContent stores a content hash under a unique index.
func WithUniqueContent() Option {
	return func(s *settings) { s.unique = true }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(s *settings) { s.log = l.WithComponent("gridfs.mongodb") }
}

// Driver dials MongoDB deployments.
type Driver struct {
	settings settings
}

var _ gridfs.Driver = (*Driver)(nil)

// NewDriver creates a driver.
func NewDriver(opts ...Option) *Driver {
	return &Driver{settings: newSettings(opts)}
}

func (d *Driver) Name() string                       { return "mongodb" }
func (d *Driver) IsAvailable(_ context.Context) bool { return true }

// Connect dials url and pings the primary before returning.
func (d *Driver) Connect(ctx context.Context, url string, opts gridfs.ConnectOptions) (gridfs.Database, error) {
	co := options.Client().ApplyURI(url)
	if opts.AppName != "" {
		co.SetAppName(opts.AppName)
	}
	if opts.ConnectTimeout > 0 {
		co.SetConnectTimeout(opts.ConnectTimeout)
		co.SetServerSelectionTimeout(opts.ConnectTimeout)
	}
	tlsConfig, err := opts.TLS.BuildClient()
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if tlsConfig != nil {
		co.SetTLSConfig(tlsConfig)
	}

	client, err := mongo.Connect(ctx, co)
	if err != nil {
		return nil, fmt.Errorf("mongodb connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("mongodb ping: %w", err)
	}

	name := opts.Database
	if name == "" {
		name = gridfs.DatabaseName(url, DefaultDatabase)
	}
	d.settings.log.Debug("Connected", logger.Fields(logger.FieldDatabase, name))
	return newDatabase(client, name, d.settings), nil
}

// Database is a gridfs.Database over a MongoDB database.
type Database struct {
	client   *mongo.Client
	db       *mongo.Database
	settings settings
	closed   atomic.Bool

	mu      sync.Mutex
	indexed map[string]bool
}

var _ gridfs.Database = (*Database)(nil)

// Wrap adapts a connected client for handle or pending mode.
func Wrap(client *mongo.Client, name string, opts ...Option) *Database {
	return newDatabase(client, name, newSettings(opts))
}

func newDatabase(client *mongo.Client, name string, s settings) *Database {
	return &Database{
		client:   client,
		db:       client.Database(name),
		settings: s,
		indexed:  make(map[string]bool),
	}
}

func (d *Database) Name() string { return d.db.Name() }

// Client returns the underlying client.
func (d *Database) Client() *mongo.Client { return d.client }

// IsOpen pings the primary.
func (d *Database) IsOpen(ctx context.Context) bool {
	if d.closed.Load() {
		return false
	}
	return d.client.Ping(ctx, readpref.Primary()) == nil
}

// Close disconnects the client.
func (d *Database) Close(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	return d.client.Disconnect(ctx)
}

// Bucket returns a GridFS bucket. It does not touch the server.
func (d *Database) Bucket(opts gridfs.BucketOptions) (gridfs.Bucket, error) {
	bo := options.GridFSBucket().SetName(opts.Name)
	if opts.ChunkSize > 0 {
		bo.SetChunkSizeBytes(opts.ChunkSize)
	}
	b, err := mgridfs.NewBucket(d.db, bo)
	if err != nil {
		return nil, &gridfs.StoreError{Op: "bucket", Err: err}
	}
	return &Bucket{db: d, name: opts.Name, b: b}, nil
}

// ensureIndex creates the unique content index on a files collection once.
func (d *Database) ensureIndex(ctx context.Context, files *mongo.Collection) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.indexed[files.Name()] {
		return nil
	}
	_, err := files.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: FieldContentHash, Value: 1}},
		Options: options.Index().SetName(IndexContentHash).SetUnique(true).SetSparse(true),
	})
	if err != nil {
		return err
	}
	d.indexed[files.Name()] = true
	d.settings.log.Debug("Created content index", logger.Fields(
		logger.FieldDatabase, d.Name(),
		"collection", files.Name(),
	))
	return nil
}

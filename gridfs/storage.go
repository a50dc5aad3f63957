package gridfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/kbukum/gridstore/component"
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/observability"
	"github.com/kbukum/gridstore/util"
)

// Storage stores uploaded files in GridFS buckets.
// It is safe for concurrent use by multiple goroutines.
type Storage struct {
	cfg      Config
	conn     *connection
	bus      *events.Bus
	log      *logger.Logger
	metrics  *observability.Metrics
	resolver Resolver
}

var _ component.Component = (*Storage)(nil)

// New validates cfg and starts acquiring the database handle.
func New(cfg Config) (*Storage, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.Logger.WithComponent("gridfs")
	bus := cfg.Events
	if bus == nil {
		bus = events.NewBus(events.WithLogger(cfg.Logger))
	}
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = defaultResolver{}
	}

	s := &Storage{
		cfg:      cfg,
		bus:      bus,
		log:      log,
		metrics:  cfg.Metrics,
		resolver: resolver,
	}
	s.conn = newConnection(&s.cfg, bus, log)
	s.conn.start()
	return s, nil
}

// Ready blocks until the database handle is usable or has failed. After a
// failure it returns the same *ConnectionError immediately. ctx bounds the
// wait only; it does not cancel the connection attempt.
func (s *Storage) Ready(ctx context.Context) (Database, error) {
	return s.conn.ready(ctx)
}

// DB returns the current handle, or nil before Ready and after a failure.
func (s *Storage) DB() Database {
	db, _ := s.conn.current()
	return db
}

// State returns the connection state.
func (s *Storage) State() ConnectionState {
	_, st := s.conn.current()
	return st
}

// Mode returns the configured handle source.
func (s *Storage) Mode() Mode {
	return s.conn.mode
}

// Events returns the bus lifecycle events are published on.
func (s *Storage) Events() *events.Bus {
	return s.bus
}

// On subscribes handler to events of kind.
func (s *Storage) On(kind events.Kind, handler events.Handler) *events.Subscription {
	return s.bus.Subscribe(kind, handler)
}

// OnFile subscribes to stored files.
func (s *Storage) OnFile(fn func(*File)) *events.Subscription {
	return s.bus.Subscribe(events.KindFile, func(ev events.Event) {
		if f, ok := ev.Data.(*File); ok {
			fn(f)
		}
	})
}

// OnStreamError subscribes to store errors with their attempted metadata.
func (s *Storage) OnStreamError(fn func(error, Snapshot)) *events.Subscription {
	return s.bus.Subscribe(events.KindStreamError, func(ev events.Event) {
		snap, _ := ev.Data.(Snapshot)
		fn(ev.Err, snap)
	})
}

// OnConnection subscribes to the handle becoming usable.
func (s *Storage) OnConnection(fn func(Database)) *events.Subscription {
	return s.bus.Subscribe(events.KindConnection, func(ev events.Event) {
		db, _ := ev.Data.(Database)
		fn(db)
	})
}

// OnConnectionFailed subscribes to connection failures.
func (s *Storage) OnConnectionFailed(fn func(error)) *events.Subscription {
	return s.bus.Subscribe(events.KindConnectionFailed, func(ev events.Event) {
		fn(ev.Err)
	})
}

// RemoveFile deletes a stored file from its bucket.
func (s *Storage) RemoveFile(ctx context.Context, file *File) error {
	if file == nil || file.ID == nil {
		return errors.New("gridfs: remove requires a stored file")
	}
	ctx, span := observability.StartSpan(ctx, observability.SpanRemove)
	defer span.End()

	db, err := s.Ready(ctx)
	if err != nil {
		return err
	}
	name := file.BucketName
	if name == "" {
		name = s.cfg.BucketName
	}
	chunk := file.ChunkSize
	if chunk == 0 {
		chunk = s.cfg.ChunkSize
	}

	bucket, err := db.Bucket(BucketOptions{Name: name, ChunkSize: chunk})
	if err == nil {
		err = bucket.Delete(ctx, file.ID)
	}

	status := observability.StatusOK
	if err != nil {
		status = observability.StatusFailed
		observability.SetSpanError(ctx, err)
		s.log.Warn("File removal failed", logger.MergeWithError(logger.Fields(
			logger.FieldFileID, idString(file.ID),
			logger.FieldBucket, name,
		), err))
	} else {
		s.log.Debug("File removed", logger.Fields(
			logger.FieldFileID, idString(file.ID),
			logger.FieldBucket, name,
		))
	}
	if s.metrics != nil {
		s.metrics.RecordRemove(ctx, name, status)
	}
	return err
}

// Close stops a pending connection attempt and disconnects a handle the
// storage dialled from its URL. Handles supplied by the caller stay open.
func (s *Storage) Close(ctx context.Context) error {
	return s.conn.close(ctx)
}

// --- component.Component ---

// Name returns the component name.
func (s *Storage) Name() string { return "gridfs" }

// Start waits for the database handle.
func (s *Storage) Start(ctx context.Context) error {
	if _, err := s.Ready(ctx); err != nil {
		return fmt.Errorf("gridfs start: %w", err)
	}
	return nil
}

// Stop closes the storage.
func (s *Storage) Stop(ctx context.Context) error {
	return s.Close(ctx)
}

// Health reports the connection state, probing the handle when ready.
func (s *Storage) Health(ctx context.Context) component.Health {
	db, state := s.conn.current()
	h := component.Health{Name: s.Name()}
	switch {
	case state == StateReady && db.IsOpen(ctx):
		h.Status = component.StatusHealthy
	case state == StateReady:
		h.Status = component.StatusUnhealthy
		h.Message = "database handle closed"
	case state == StateFailed:
		h.Status = component.StatusUnhealthy
		h.Message = "connection failed"
	default:
		h.Status = component.StatusDegraded
		h.Message = state.String()
	}
	return h
}

// Describe returns summary info for the startup display.
func (s *Storage) Describe() component.Description {
	details := fmt.Sprintf("mode=%s bucket=%s chunk=%d", s.conn.mode, s.cfg.BucketName, s.cfg.ChunkSize)
	if s.conn.mode == ModeURL {
		details = fmt.Sprintf("%s %s", util.RedactURL(s.cfg.URL), details)
	}
	return component.Description{
		Name:    "GridFS",
		Type:    "storage",
		Details: details,
	}
}

// idString renders a file id for logs and span attributes.
func idString(id any) string {
	switch v := id.(type) {
	case nil:
		return ""
	case string:
		return v
	case interface{ Hex() string }:
		return v.Hex()
	default:
		return fmt.Sprint(v)
	}
}

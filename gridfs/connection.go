package gridfs

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/kbukum/gridstore/async"
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/observability"
)

// connection owns the database handle. It settles once, to Ready or
// Failed, and never reconnects.
type connection struct {
	mode    Mode
	cfg     *Config
	bus     *events.Bus
	log     *logger.Logger
	metrics *observability.Metrics

	mu    sync.RWMutex
	state ConnectionState
	db    Database
	err   error
	owned bool

	settled chan struct{}
	exited  chan struct{}
	cancel  context.CancelCauseFunc
}

func newConnection(cfg *Config, bus *events.Bus, log *logger.Logger) *connection {
	return &connection{
		mode:    cfg.Mode(),
		cfg:     cfg,
		bus:     bus,
		log:     log,
		metrics: cfg.Metrics,
		state:   StateUnconnected,
		settled: make(chan struct{}),
		exited:  make(chan struct{}),
	}
}

// start moves the connection to Connecting and acquires the handle on a
// new goroutine.
func (c *connection) start() {
	ctx, cancel := context.WithCancelCause(context.Background())
	c.cancel = cancel

	c.mu.Lock()
	c.state = StateConnecting
	c.mu.Unlock()
	c.log.Debug("Connecting", logger.Fields(logger.FieldMode, c.mode.String(), logger.FieldState, StateConnecting.String()))

	go func() {
		defer close(c.exited)
		c.acquire(ctx)
	}()
}

func (c *connection) acquire(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, observability.SpanConnect)
	defer span.End()
	started := time.Now()

	db, owned, err := c.open(ctx)
	if err == nil && db == nil {
		err = errors.New("gridfs: nil database handle")
	}
	if err == nil && !db.IsOpen(ctx) {
		err = ErrConnectionNotOpen
	}

	if err != nil && errors.Is(context.Cause(ctx), ErrClosed) {
		err = ErrClosed
	}
	if err != nil {
		observability.SetSpanError(ctx, err)
		if owned && db != nil {
			_ = db.Close(context.Background())
		}
		c.fail(ctx, err, time.Since(started))
		return
	}
	c.succeed(ctx, db, owned, time.Since(started))
}

// open obtains the handle for the configured mode. A panic in a driver is
// treated as a connect error.
func (c *connection) open(ctx context.Context) (db Database, owned bool, err error) {
	switch c.mode {
	case ModeHandle:
		return c.cfg.DB, false, nil
	case ModePending:
		db, err = c.cfg.PendingDB.Await(ctx)
		return db, false, err
	case ModeURL:
		drv := c.cfg.Driver
		if drv == nil {
			drv, err = DriverFor(c.cfg.URL, c.cfg.Options)
			if err != nil {
				return nil, false, err
			}
		}
		c.log.Debug("Dialling database", logger.Fields(logger.FieldDriver, drv.Name()))
		err = async.Capture(func() error {
			var err error
			db, err = drv.Connect(ctx, c.cfg.URL, c.cfg.Options)
			return err
		})
		return db, true, err
	default:
		return nil, false, invalidConfig("no connection mode")
	}
}

func (c *connection) succeed(ctx context.Context, db Database, owned bool, took time.Duration) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateReady
	c.db = db
	c.owned = owned
	close(c.settled)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.RecordConnection(ctx, c.mode.String(), observability.StatusOK)
	}
	c.log.Info("Database connection ready", logger.Fields(
		logger.FieldMode, c.mode.String(),
		logger.FieldDatabase, db.Name(),
		logger.FieldDuration, took.Milliseconds(),
	))
	c.bus.Emit(events.Event{Kind: events.KindConnection, Data: db})
}

// fail settles the connection as Failed. The handle reference is cleared
// and connectionFailed carries the underlying error.
func (c *connection) fail(ctx context.Context, cause error, took time.Duration) {
	c.mu.Lock()
	if c.state != StateConnecting {
		c.mu.Unlock()
		return
	}
	c.state = StateFailed
	c.db = nil
	c.err = connectionError(cause)
	close(c.settled)
	c.mu.Unlock()

	if errors.Is(cause, ErrClosed) {
		return
	}
	if c.metrics != nil {
		c.metrics.RecordConnection(ctx, c.mode.String(), observability.StatusFailed)
	}
	c.log.Warn("Database connection failed", logger.MergeWithError(logger.Fields(
		logger.FieldMode, c.mode.String(),
		logger.FieldDuration, took.Milliseconds(),
	), cause))
	c.bus.Emit(events.Event{Kind: events.KindConnectionFailed, Err: cause})
}

// ready waits for the connection to settle.
func (c *connection) ready(ctx context.Context) (Database, error) {
	select {
	case <-c.settled:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.state == StateReady {
		return c.db, nil
	}
	return nil, c.err
}

func (c *connection) current() (Database, ConnectionState) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.db, c.state
}

// close stops a pending acquisition and disconnects a handle this
// connection dialled itself. Uploads that already captured the handle
// keep using it.
func (c *connection) close(ctx context.Context) error {
	if c.cancel == nil {
		return nil
	}
	c.cancel(ErrClosed)
	<-c.exited

	c.mu.Lock()
	db, owned := c.db, c.owned
	if c.state == StateReady {
		c.state = StateFailed
		c.err = connectionError(ErrClosed)
	}
	c.db = nil
	c.owned = false
	c.mu.Unlock()

	if owned && db != nil {
		c.log.Debug("Disconnecting database", logger.Fields(logger.FieldDatabase, db.Name()))
		return db.Close(ctx)
	}
	return nil
}

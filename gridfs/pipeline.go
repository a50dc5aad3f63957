package gridfs

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/gridstore/async"
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/observability"
	"github.com/kbukum/gridstore/provider"
	"github.com/kbukum/gridstore/validation"
)

// HandleFile stores one file read from src and returns the stored File,
// or an error. It never returns both.
//
// The call waits for the database handle, resolves metadata, and copies
// src into the store. Resolver and random-source errors are returned
// unchanged. Store errors are returned unchanged and also published as a
// streamError event with the attempted metadata. A connection failure
// returns a *ConnectionError. A failing src is returned unchanged without
// a streamError event. Panics in the driver become stream errors.
func (s *Storage) HandleFile(ctx context.Context, req *http.Request, part *Part, src io.Reader) (*File, error) {
	if src == nil {
		return nil, invalidConfig("a source reader is required")
	}
	if part == nil {
		part = &Part{}
	}
	op := observability.StartUpload(ctx, s.metrics, s.cfg.BucketName)
	u := &upload{
		s:      s,
		req:    req,
		part:   part,
		src:    &sourceReader{r: src},
		op:     op,
		log:    s.log.WithFields(logger.Fields(logger.FieldField, part.FieldName)),
		status: observability.StatusFailed,
	}
	file, err := u.run(op.Context())
	op.End(u.status, err)
	return file, err
}

// upload is the state of one HandleFile call.
type upload struct {
	s      *Storage
	req    *http.Request
	part   *Part
	src    *sourceReader
	op     *observability.UploadOperation
	log    *logger.Logger
	state  FileState
	status string

	info   FileInfo
	stream UploadStream
	copy   *errgroup.Group
	stop   context.CancelFunc
}

func (u *upload) run(ctx context.Context) (*File, error) {
	u.transition(FileAwaitingConnection)
	db, err := u.s.Ready(ctx)
	if err != nil {
		return nil, u.failed(err)
	}

	u.transition(FileResolvingMetadata)
	var it provider.Iterator[*FileInfo]
	err = async.Capture(func() error {
		var err error
		it, err = u.s.resolver.Resolve(ctx, u.req, u.part)
		return err
	})
	if err != nil {
		return nil, u.failed(err)
	}
	if it == nil {
		it = provider.FromSlice[*FileInfo]()
	}
	defer it.Close()

	for {
		var (
			step *FileInfo
			ok   bool
		)
		err := async.Capture(func() error {
			var err error
			step, ok, err = it.Next(ctx)
			return err
		})
		if err != nil {
			u.abandon(ctx)
			return nil, u.failed(err)
		}
		if !ok {
			break
		}
		if err := u.apply(ctx, db, step); err != nil {
			return nil, err
		}
	}

	if u.stream == nil {
		if err := u.open(ctx, db); err != nil {
			return nil, err
		}
	}
	return u.finish(ctx)
}

// apply folds one resolver step into the file's metadata. Before the
// stream opens every field counts and a filename opens it; afterwards only
// the filename, content type and metadata can change.
func (u *upload) apply(ctx context.Context, db Database, step *FileInfo) error {
	if step == nil {
		return nil
	}
	if err := validation.Struct(step); err != nil {
		u.abandon(ctx)
		return u.failed(invalidConfig("file info: %v", err))
	}

	if u.stream == nil {
		u.info.merge(step)
		if u.info.Filename != "" {
			return u.open(ctx, db)
		}
		return nil
	}

	if (step.BucketName != "" && step.BucketName != u.info.BucketName) ||
		(step.ChunkSize != 0 && step.ChunkSize != u.info.ChunkSize) || step.ID != nil {
		u.log.Warn("Ignoring id, bucket or chunk size resolved after the stream opened", logger.Fields(
			logger.FieldFilename, u.info.Filename,
			logger.FieldBucket, u.info.BucketName,
		))
	}
	if step.Filename != "" {
		u.info.Filename = step.Filename
	}
	if step.ContentType != "" {
		u.info.ContentType = step.ContentType
	}
	if step.Metadata != nil {
		u.info.Metadata = step.Metadata
	}
	return nil
}

func (u *upload) applyDefaults() error {
	cfg := u.s.cfg
	if u.info.ContentType == "" {
		u.info.ContentType = u.part.MimeType
	}
	if u.info.ChunkSize == 0 {
		u.info.ChunkSize = cfg.ChunkSize
	}
	if u.info.BucketName == "" {
		u.info.BucketName = cfg.BucketName
	}
	if u.info.Filename == "" {
		name, err := randomFilename(cfg.Random, cfg.RandomBytes)
		if err != nil {
			return err
		}
		u.info.Filename = name
	}
	return nil
}

// open creates the store stream and starts copying the source into it.
func (u *upload) open(ctx context.Context, db Database) error {
	if err := u.applyDefaults(); err != nil {
		return u.failed(err)
	}
	u.op.SetBucket(u.info.BucketName)

	var stream UploadStream
	err := async.Capture(func() error {
		bucket, err := db.Bucket(BucketOptions{Name: u.info.BucketName, ChunkSize: u.info.ChunkSize})
		if err != nil {
			return err
		}
		stream, err = bucket.OpenUploadStream(ctx, UploadOptions{
			ID:          u.info.ID,
			Filename:    u.info.Filename,
			ContentType: u.info.ContentType,
			ChunkSize:   u.info.ChunkSize,
			Metadata:    u.info.Metadata,
		})
		return err
	})
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return u.failed(err)
		}
		return u.streamFailed(err)
	}
	u.stream = stream
	u.info.ID = stream.FileID()
	u.transition(FileStreaming)

	copyCtx, stop := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(copyCtx)
	u.copy, u.stop = g, stop
	u.src.ctx = gctx
	g.Go(func() error {
		return async.Capture(func() error {
			_, err := io.Copy(stream, u.src)
			return err
		})
	})
	return nil
}

// finish waits for the copy and finalizes the file.
func (u *upload) finish(ctx context.Context) (*File, error) {
	err := u.copy.Wait()
	u.stop()
	cleanup := context.WithoutCancel(ctx)

	if err != nil {
		u.abort(cleanup)
		if srcErr := u.src.err; srcErr != nil {
			return nil, u.failed(srcErr)
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			return nil, u.failed(err)
		}
		return nil, u.streamFailed(err)
	}

	final := &UploadOptions{
		ID:          u.info.ID,
		Filename:    u.info.Filename,
		ContentType: u.info.ContentType,
		ChunkSize:   u.info.ChunkSize,
		Metadata:    u.info.Metadata,
	}
	if err := async.Capture(func() error { return u.stream.Close(ctx, final) }); err != nil {
		u.abort(cleanup)
		return nil, u.streamFailed(err)
	}

	file := &File{
		ID:          u.info.ID,
		Filename:    u.info.Filename,
		Metadata:    u.info.Metadata,
		BucketName:  u.info.BucketName,
		ChunkSize:   u.info.ChunkSize,
		ContentType: u.info.ContentType,
		Size:        u.stream.Size(),
		UploadDate:  time.Now().UTC(),
	}
	u.op.SetFile(idString(file.ID), file.Filename, file.ChunkSize)
	u.op.SetBytes(file.Size)
	u.status = observability.StatusOK
	u.transition(FileCompleted)
	u.log.Info("File stored", logger.Fields(
		logger.FieldFileID, idString(file.ID),
		logger.FieldFilename, file.Filename,
		logger.FieldBucket, file.BucketName,
		logger.FieldSize, file.Size,
	))
	u.s.bus.Emit(events.Event{Kind: events.KindFile, Data: file})
	return file, nil
}

// abandon stops an open stream after a resolver failure. The resolver's
// error is what the caller returns; a store failure the copy hit before
// that is still published as a streamError.
func (u *upload) abandon(ctx context.Context) {
	if u.stream == nil {
		return
	}
	u.stop()
	err := u.copy.Wait()
	u.abort(context.WithoutCancel(ctx))
	if err != nil && u.src.err == nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		_ = u.streamFailed(err)
	}
}

// abort discards the open stream, containing driver panics.
func (u *upload) abort(ctx context.Context) {
	if err := async.Capture(func() error { return u.stream.Abort(ctx) }); err != nil {
		u.log.Debug("Abort failed", logger.MergeWithError(logger.Fields(logger.FieldFilename, u.info.Filename), err))
	}
}

// failed ends the file without a streamError event and returns err.
func (u *upload) failed(err error) error {
	u.transition(FileFailed)
	u.log.Warn("Upload failed", logger.MergeWithError(logger.Fields(
		logger.FieldFilename, u.info.Filename,
	), err))
	return err
}

// streamFailed ends the file with a store error: the error is published
// with the attempted metadata and returned unchanged.
func (u *upload) streamFailed(err error) error {
	u.status = observability.StatusStreamError
	u.transition(FileFailed)
	snap := snapshotOf(&u.info)
	u.log.Error("Stream error", logger.MergeWithError(logger.Fields(
		logger.FieldFileID, idString(snap.ID),
		logger.FieldFilename, snap.Filename,
		logger.FieldBucket, snap.BucketName,
	), err))
	u.s.bus.Emit(events.Event{Kind: events.KindStreamError, Err: err, Data: snap})
	return err
}

func (u *upload) transition(next FileState) {
	u.log.Debug("File state changed", logger.Fields(
		logger.FieldState, next.String(),
		"from", u.state.String(),
		logger.FieldFilename, u.info.Filename,
	))
	u.state = next
	u.op.SetState(next.String())
}

// sourceReader reads the upload body until ctx is done and keeps the
// first error the body itself returned, so it is not mistaken for a store
// failure. err is only read after the copy goroutine has finished.
type sourceReader struct {
	ctx context.Context
	r   io.Reader
	err error
}

func (sr *sourceReader) Read(p []byte) (n int, err error) {
	if err := sr.ctx.Err(); err != nil {
		return 0, err
	}
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, async.FromPanic(r)
		}
		if err != nil && err != io.EOF && sr.err == nil {
			sr.err = err
		}
	}()
	return sr.r.Read(p)
}

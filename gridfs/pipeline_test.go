package gridfs_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/kbukum/gridstore/async"
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/gridfs/testutil"
)

// streamHooks replace UploadStream methods of a wrapped database.
type streamHooks struct {
	write func(p []byte) (int, error)
	close func() error
}

type hookedDB struct {
	gridfs.Database
	hooks streamHooks
}

func (d *hookedDB) Bucket(opts gridfs.BucketOptions) (gridfs.Bucket, error) {
	b, err := d.Database.Bucket(opts)
	if err != nil {
		return nil, err
	}
	return &hookedBucket{Bucket: b, hooks: d.hooks}, nil
}

type hookedBucket struct {
	gridfs.Bucket
	hooks streamHooks
}

func (b *hookedBucket) OpenUploadStream(ctx context.Context, opts gridfs.UploadOptions) (gridfs.UploadStream, error) {
	s, err := b.Bucket.OpenUploadStream(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &hookedStream{UploadStream: s, hooks: b.hooks}, nil
}

type hookedStream struct {
	gridfs.UploadStream
	hooks streamHooks
}

func (s *hookedStream) Write(p []byte) (int, error) {
	if s.hooks.write != nil {
		return s.hooks.write(p)
	}
	return s.UploadStream.Write(p)
}

func (s *hookedStream) Close(ctx context.Context, final *gridfs.UploadOptions) error {
	if s.hooks.close != nil {
		return s.hooks.close()
	}
	return s.UploadStream.Close(ctx, final)
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

type panickingReader struct{}

func (panickingReader) Read([]byte) (int, error) { panic("reader bug") }

func TestSourceFailureIsNotStreamError(t *testing.T) {
	errDisconnect := errors.New("client disconnected")
	db := testutil.NewDatabase("uploads")
	store, rec := newStore(t, gridfs.Config{DB: db})

	src := io.MultiReader(strings.NewReader("partial"), failingReader{err: errDisconnect})
	file, err := store.HandleFile(testContext(t), uploadRequest(), textPart("a.txt"), src)
	if file != nil {
		t.Fatalf("expected no file, got %+v", file)
	}
	if err != errDisconnect {
		t.Fatalf("err = %v, want the source error itself", err)
	}
	if n := len(rec.of(events.KindStreamError)); n != 0 {
		t.Errorf("streamError events = %d, want 0", n)
	}
	if n := len(db.Files(gridfs.DefaultBucketName)); n != 0 {
		t.Errorf("stored files = %d, want 0", n)
	}
}

func TestSourcePanicIsNotStreamError(t *testing.T) {
	store, rec := newStore(t, gridfs.Config{DB: testutil.NewDatabase("uploads")})

	_, err := store.HandleFile(testContext(t), uploadRequest(), textPart("a.txt"), panickingReader{})
	var pe *async.PanicError
	if !errors.As(err, &pe) || pe.Value != "reader bug" {
		t.Fatalf("err = %T %v", err, err)
	}
	if n := len(rec.of(events.KindStreamError)); n != 0 {
		t.Errorf("streamError events = %d, want 0", n)
	}
}

func TestNilSourceRejected(t *testing.T) {
	store, rec := newStore(t, gridfs.Config{DB: testutil.NewDatabase("uploads")})

	file, err := store.HandleFile(testContext(t), uploadRequest(), textPart("a.txt"), nil)
	if file != nil || !errors.Is(err, gridfs.ErrInvalidConfig) {
		t.Fatalf("HandleFile = %v, %v", file, err)
	}
	if n := len(rec.of(events.KindStreamError)); n != 0 {
		t.Errorf("streamError events = %d", n)
	}
}

func TestDriverPanicsBecomeStreamErrors(t *testing.T) {
	tests := []struct {
		name  string
		hooks streamHooks
	}{
		{"write", streamHooks{write: func([]byte) (int, error) { panic("driver bug") }}},
		{"close", streamHooks{close: func() error { panic("driver bug") }}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			db := &hookedDB{Database: testutil.NewDatabase("uploads"), hooks: tc.hooks}
			store, rec := newStore(t, gridfs.Config{DB: db})

			file, err := upload(testContext(t), store, "hello")
			if file != nil {
				t.Fatalf("expected no file, got %+v", file)
			}
			var pe *async.PanicError
			if !errors.As(err, &pe) || pe.Value != "driver bug" {
				t.Fatalf("err = %T %v", err, err)
			}
			got := rec.of(events.KindStreamError)
			if len(got) != 1 || got[0].Err != err {
				t.Errorf("streamError events = %v", got)
			}
		})
	}
}

func TestStoreFailureBeforeResolverFailureIsPublished(t *testing.T) {
	errWrite := errors.New("chunk insert failed")
	errResolve := errors.New("Resolver error")
	written := make(chan struct{})

	db := &hookedDB{
		Database: testutil.NewDatabase("uploads"),
		hooks: streamHooks{write: func([]byte) (int, error) {
			close(written)
			return 0, errWrite
		}},
	}
	resolver := gridfs.GenerateResolver(func(ctx context.Context, _ *http.Request, _ *gridfs.Part, yield func(*gridfs.FileInfo) error) error {
		if err := yield(&gridfs.FileInfo{Filename: "partial.txt"}); err != nil {
			return err
		}
		select {
		case <-written:
		case <-ctx.Done():
			return ctx.Err()
		}
		return errResolve
	})
	store, rec := newStore(t, gridfs.Config{DB: db, Resolver: resolver})

	_, err := upload(testContext(t), store, "hello")
	if err != errResolve {
		t.Fatalf("err = %v, want the resolver error", err)
	}
	got := rec.of(events.KindStreamError)
	if len(got) != 1 || got[0].Err != errWrite {
		t.Fatalf("streamError events = %v", got)
	}
	if snap, ok := got[0].Data.(gridfs.Snapshot); !ok || snap.Filename != "partial.txt" {
		t.Errorf("snapshot = %+v", got[0].Data)
	}
}

package gridfs_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/logger"
)

const waitTimeout = 2 * time.Second

// recorder collects every event published on a bus.
type recorder struct {
	mu     sync.Mutex
	events []events.Event
	notify chan events.Event
}

func record(bus *events.Bus) *recorder {
	r := &recorder{notify: make(chan events.Event, 64)}
	for _, kind := range events.Kinds() {
		bus.Subscribe(kind, func(ev events.Event) {
			r.mu.Lock()
			r.events = append(r.events, ev)
			r.mu.Unlock()
			select {
			case r.notify <- ev:
			default:
			}
		})
	}
	return r
}

func (r *recorder) of(kind events.Kind) []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.Event
	for _, ev := range r.events {
		if ev.Kind == kind {
			out = append(out, ev)
		}
	}
	return out
}

func (r *recorder) waitFor(t *testing.T, kind events.Kind) events.Event {
	t.Helper()
	if got := r.of(kind); len(got) > 0 {
		return got[0]
	}
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-r.notify:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
			return events.Event{}
		}
	}
}

// newStore builds a storage with a recorded bus and closes it on cleanup.
func newStore(t *testing.T, cfg gridfs.Config) (*gridfs.Storage, *recorder) {
	t.Helper()
	if cfg.Events == nil {
		cfg.Events = events.NewBus(events.WithLogger(logger.Nop()))
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	rec := record(cfg.Events)
	store, err := gridfs.New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store, rec
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	t.Cleanup(cancel)
	return ctx
}

func uploadRequest() *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/upload", nil)
	r.Header.Set("X-User", "ada")
	return r
}

func textPart(original string) *gridfs.Part {
	return &gridfs.Part{FieldName: "file", OriginalName: original, MimeType: "text/plain"}
}

func upload(ctx context.Context, store *gridfs.Storage, content string) (*gridfs.File, error) {
	return store.HandleFile(ctx, uploadRequest(), textPart("a.txt"), bytes.NewBufferString(content))
}

// countingReader records whether the pipeline ever read from it.
type countingReader struct {
	r     io.Reader
	reads atomic.Int32
}

func (c *countingReader) Read(p []byte) (int, error) {
	c.reads.Add(1)
	return c.r.Read(p)
}

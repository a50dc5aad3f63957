package provider

import (
	"context"
	"sync"

	"github.com/kbukum/gridstore/async"
)

// Iterator provides pull-based sequential access to a stream of values.
// The consumer calls Next() to retrieve values one at a time.
// Close must be called when done to release resources.
type Iterator[T any] interface {
	// Next returns the next value. Returns (zero, false, nil) when exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases any resources held by the iterator.
	Close() error
}

// IteratorFunc adapts a next function to Iterator. Close is a no-op.
type IteratorFunc[T any] func(ctx context.Context) (T, bool, error)

func (f IteratorFunc[T]) Next(ctx context.Context) (T, bool, error) { return f(ctx) }
func (f IteratorFunc[T]) Close() error                              { return nil }

type sliceIterator[T any] struct {
	items []T
	pos   int
}

// FromSlice returns an iterator over items.
func FromSlice[T any](items ...T) Iterator[T] {
	return &sliceIterator[T]{items: items}
}

// Single returns an iterator yielding v once.
func Single[T any](v T) Iterator[T] {
	return FromSlice(v)
}

func (it *sliceIterator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, false, err
	}
	if it.pos >= len(it.items) {
		return zero, false, nil
	}
	v := it.items[it.pos]
	it.pos++
	return v, true, nil
}

func (it *sliceIterator[T]) Close() error {
	it.pos = len(it.items)
	return nil
}

// Failed returns an iterator whose first Next reports err.
func Failed[T any](err error) Iterator[T] {
	return IteratorFunc[T](func(context.Context) (T, bool, error) {
		var zero T
		return zero, false, err
	})
}

// Collect drains it and closes it.
func Collect[T any](ctx context.Context, it Iterator[T]) ([]T, error) {
	defer it.Close()
	var out []T
	for {
		v, ok, err := it.Next(ctx)
		if err != nil {
			return out, err
		}
		if !ok {
			return out, nil
		}
		out = append(out, v)
	}
}

// Producer emits values through yield. yield returns an error once the
// consumer has closed the iterator; producers should return it.
type Producer[T any] func(ctx context.Context, yield func(T) error) error

type generator[T any] struct {
	produce Producer[T]
	values  chan T
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	start   sync.Once
	closed  sync.Once
	started bool
	err     error
}

// Generate returns an iterator backed by a producer goroutine.
// The producer starts on the first Next and runs in lockstep with the
// consumer: each yield blocks until the value is taken. An error returned
// by the producer, or a panic raised in it, is reported by Next after the
// values yielded before it. Close stops the producer and waits for it.
func Generate[T any](produce Producer[T]) Iterator[T] {
	ctx, cancel := context.WithCancel(context.Background())
	return &generator[T]{
		produce: produce,
		values:  make(chan T),
		done:    make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (g *generator[T]) run() {
	defer close(g.done)
	defer close(g.values)
	g.err = async.Capture(func() error {
		return g.produce(g.ctx, g.yield)
	})
}

func (g *generator[T]) yield(v T) error {
	select {
	case g.values <- v:
		return nil
	case <-g.ctx.Done():
		return g.ctx.Err()
	}
}

func (g *generator[T]) Next(ctx context.Context) (T, bool, error) {
	var zero T
	g.start.Do(func() {
		if g.ctx.Err() != nil {
			return
		}
		g.started = true
		go g.run()
	})
	if !g.started {
		return zero, false, nil
	}

	select {
	case v, ok := <-g.values:
		if !ok {
			if g.ctx.Err() != nil {
				return zero, false, nil
			}
			return zero, false, g.err
		}
		return v, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	}
}

func (g *generator[T]) Close() error {
	g.closed.Do(func() {
		g.cancel()
		// Prevent a later Next from starting the producer.
		g.start.Do(func() {})
		if g.started {
			<-g.done
		}
	})
	return nil
}

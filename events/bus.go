package events

import (
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/gridstore/async"
	"github.com/kbukum/gridstore/logger"
)

// Bus delivers events to subscribed listeners.
type Bus struct {
	mu      sync.RWMutex
	subs    map[Kind][]*Subscription
	nextID  atomic.Uint64
	log     *logger.Logger
	onPanic PanicHandler
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger used for listener panics.
func WithLogger(l *logger.Logger) Option {
	return func(b *Bus) {
		if l != nil {
			b.log = l
		}
	}
}

// WithPanicHandler sets the handler invoked for each recovered listener panic.
func WithPanicHandler(h PanicHandler) Option {
	return func(b *Bus) { b.onPanic = h }
}

// NewBus creates an empty bus.
func NewBus(opts ...Option) *Bus {
	b := &Bus{
		subs: make(map[Kind][]*Subscription),
		log:  logger.Nop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.WithComponent("events")
	return b
}

// Subscription is a registered listener.
type Subscription struct {
	bus     *Bus
	kind    Kind
	id      uint64
	handler Handler
	active  atomic.Bool
}

// Kind returns the subscribed kind.
func (s *Subscription) Kind() Kind { return s.kind }

// Active reports whether the subscription still receives events.
func (s *Subscription) Active() bool { return s.active.Load() }

// Cancel stops delivery to the listener. It is safe to call more than once.
func (s *Subscription) Cancel() {
	if !s.active.CompareAndSwap(true, false) {
		return
	}
	s.bus.remove(s)
}

// Subscribe registers handler for kind.
func (b *Bus) Subscribe(kind Kind, handler Handler) *Subscription {
	s := &Subscription{
		bus:     b,
		kind:    kind,
		id:      b.nextID.Add(1),
		handler: handler,
	}
	s.active.Store(true)

	b.mu.Lock()
	b.subs[kind] = append(b.subs[kind], s)
	b.mu.Unlock()

	Listeners.WithLabelValues(string(kind)).Inc()
	return s
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	list := b.subs[s.kind]
	for i, sub := range list {
		if sub.id == s.id {
			next := make([]*Subscription, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			if len(next) == 0 {
				delete(b.subs, s.kind)
			} else {
				b.subs[s.kind] = next
			}
			Listeners.WithLabelValues(string(s.kind)).Dec()
			return
		}
	}
}

// ListenerCount returns the number of active listeners for kind.
func (b *Bus) ListenerCount(kind Kind) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[kind])
}

// Emit delivers ev to every active listener of ev.Kind, in subscription
// order, and returns the number of listeners invoked.
func (b *Bus) Emit(ev Event) int {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	EmittedTotal.WithLabelValues(string(ev.Kind)).Inc()

	b.mu.RLock()
	list := b.subs[ev.Kind]
	b.mu.RUnlock()

	delivered := 0
	for _, s := range list {
		if !s.Active() {
			continue
		}
		b.deliver(s, ev)
		delivered++
	}
	if delivered > 0 {
		DeliveredTotal.WithLabelValues(string(ev.Kind)).Add(float64(delivered))
	}
	return delivered
}

func (b *Bus) deliver(s *Subscription, ev Event) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err := async.FromPanic(r)
		ListenerPanicsTotal.WithLabelValues(string(ev.Kind)).Inc()
		b.log.Error("Event listener panicked", logger.Fields(
			logger.FieldEvent, string(ev.Kind),
			logger.FieldError, fmt.Sprint(r),
			"subscription", s.id,
			"stack", string(debug.Stack()),
		))
		if b.onPanic != nil {
			b.onPanic(ev, err)
		}
	}()
	s.handler(ev)
}

package events

import "time"

// Kind names an event type.
type Kind string

const (
	// KindConnection fires once when the database handle becomes usable.
	KindConnection Kind = "connection"
	// KindConnectionFailed fires once when the handle cannot be obtained.
	KindConnectionFailed Kind = "connectionFailed"
	// KindFile fires when a file has been stored.
	KindFile Kind = "file"
	// KindStreamError fires when the store rejects a file mid-stream.
	KindStreamError Kind = "streamError"
)

// Kinds lists every kind the storage engine emits.
func Kinds() []Kind {
	return []Kind{KindConnection, KindConnectionFailed, KindFile, KindStreamError}
}

// Event is one occurrence delivered to listeners.
type Event struct {
	Kind Kind
	// Data is the kind-specific payload: the database handle for
	// connection, the stored file for file, the attempted metadata
	// snapshot for streamError.
	Data any
	// Err is set for connectionFailed and streamError.
	Err  error
	Time time.Time
}

// Handler receives events.
type Handler func(Event)

// PanicHandler receives the error recovered from a panicking listener.
type PanicHandler func(ev Event, err error)

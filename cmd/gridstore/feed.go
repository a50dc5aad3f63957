package main

import (
	"github.com/kbukum/gridstore/events"
	"github.com/kbukum/gridstore/gridfs"
	"github.com/kbukum/gridstore/logger"
	"github.com/kbukum/gridstore/sse"
)

type streamErrorPayload struct {
	Error    string         `json:"error"`
	Snapshot map[string]any `json:"snapshot"`
}

type connectionPayload struct {
	Error string `json:"error,omitempty"`
}

// forwardEvents republishes storage events on hub under their kind names.
func forwardEvents(storage *gridfs.Storage, hub *sse.Hub, log *logger.Logger) {
	send := func(kind events.Kind, v any) {
		if err := hub.BroadcastJSON(string(kind), v); err != nil {
			log.Warn("Could not encode event", logger.MergeWithError(logger.Fields("event", string(kind)), err))
		}
	}
	storage.OnFile(func(f *gridfs.File) {
		send(events.KindFile, f)
	})
	storage.OnStreamError(func(err error, snap gridfs.Snapshot) {
		send(events.KindStreamError, streamErrorPayload{Error: errText(err), Snapshot: snap.Map()})
	})
	storage.OnConnection(func(gridfs.Database) {
		send(events.KindConnection, connectionPayload{})
	})
	storage.OnConnectionFailed(func(err error) {
		send(events.KindConnectionFailed, connectionPayload{Error: errText(err)})
	})
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

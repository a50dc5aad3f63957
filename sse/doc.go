// Package sse streams named events to HTTP clients as Server-Sent Events.
//
// A Hub fans each broadcast out to the connected clients whose patterns
// match the event name. Clients choose patterns with the events query
// parameter, e.g. GET /events?events=file,streamError; without it they
// receive everything.
//
//	hub := sse.NewHub(sse.WithLogger(log))
//	defer hub.Stop()
//	r.GET("/events", gin.WrapH(hub))
//	hub.BroadcastJSON("file", file)
//
// A client that falls behind by more than its buffer loses messages rather
// than slowing the hub.
package sse

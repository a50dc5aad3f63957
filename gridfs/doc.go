// Package gridfs is a storage engine that writes uploaded files into a
// GridFS-style chunked object store.
//
// A Storage owns one database handle, obtained from exactly one of three
// sources: a connection URL dialled through a registered Driver, an
// already-open Database, or a pending *async.Future[Database] that another
// part of the program settles later. Connecting starts when the Storage is
// constructed and never retries; a failed Storage must be replaced.
//
//	store, err := gridfs.New(gridfs.Config{
//	    URL:    "mongodb://localhost:27017/uploads",
//	    Events: bus,
//	    Resolver: gridfs.ResolverFunc(func(ctx context.Context, r *http.Request, p *gridfs.Part) (*gridfs.FileInfo, error) {
//	        return &gridfs.FileInfo{BucketName: "avatars", Metadata: map[string]any{"user": r.Header.Get("X-User")}}, nil
//	    }),
//	})
//
// Each call to HandleFile moves one file through
// Pending, AwaitingConnection, ResolvingMetadata, Streaming and finally
// Completed or Failed. Metadata comes from a Resolver, which may answer
// synchronously, through a Future, or step by step through an iterator; the
// first step that names the file opens the store stream so bytes flow while
// later steps are still resolving.
//
// Lifecycle events (connection, connectionFailed, file, streamError) are
// published on an events.Bus. Subscribe through Config.Events to observe
// connection events, since connecting begins inside New.
package gridfs

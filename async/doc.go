// Package async provides Future, a single-assignment value that is settled
// exactly once with either a result or an error.
//
// Futures model values that become available later, such as a database
// handle still being dialled by another part of the program or a metadata
// lookup running on its own goroutine:
//
//	pending := async.New[gridfs.Database]()
//	go func() {
//	    db, err := dial(ctx)
//	    if err != nil {
//	        pending.Reject(err)
//	        return
//	    }
//	    pending.Resolve(db)
//	}()
//
//	db, err := pending.Await(ctx)
//
// Panics raised by functions run through Go are recovered and turned into
// the future's error. A panic carrying an error value settles the future
// with that exact error.
package async

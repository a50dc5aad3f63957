package gridfs

import (
	"context"
	"net/http"

	"github.com/kbukum/gridstore/async"
	"github.com/kbukum/gridstore/provider"
)

// Resolver derives the metadata for one file as a finite sequence of
// FileInfo steps. Later steps override earlier ones. The first step with a
// filename lets the pipeline open the store stream before the sequence
// ends; after that, only Filename, ContentType and Metadata still take
// effect and are applied when the file is finalized.
//
// Errors returned by Resolve or by the iterator, and panics raised in
// either, become the file's error unchanged.
type Resolver interface {
	Resolve(ctx context.Context, req *http.Request, part *Part) (provider.Iterator[*FileInfo], error)
}

// ResolverFunc answers synchronously. A nil FileInfo means defaults.
type ResolverFunc func(ctx context.Context, req *http.Request, part *Part) (*FileInfo, error)

func (f ResolverFunc) Resolve(ctx context.Context, req *http.Request, part *Part) (provider.Iterator[*FileInfo], error) {
	var info *FileInfo
	err := async.Capture(func() error {
		var err error
		info, err = f(ctx, req, part)
		return err
	})
	if err != nil {
		return nil, err
	}
	return provider.Single(info), nil
}

// DeferredResolverFunc answers through a future. A rejection is the
// file's error; a nil future means defaults.
type DeferredResolverFunc func(ctx context.Context, req *http.Request, part *Part) *async.Future[*FileInfo]

func (f DeferredResolverFunc) Resolve(ctx context.Context, req *http.Request, part *Part) (provider.Iterator[*FileInfo], error) {
	var fut *async.Future[*FileInfo]
	err := async.Capture(func() error {
		fut = f(ctx, req, part)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if fut == nil {
		return provider.FromSlice[*FileInfo](), nil
	}

	done := false
	return provider.IteratorFunc[*FileInfo](func(ctx context.Context) (*FileInfo, bool, error) {
		if done {
			return nil, false, nil
		}
		done = true
		info, err := fut.Await(ctx)
		if err != nil {
			return nil, false, err
		}
		return info, true, nil
	}), nil
}

// StepResolverFunc answers with a lazy iterator of steps. A nil iterator
// means defaults.
type StepResolverFunc func(ctx context.Context, req *http.Request, part *Part) provider.Iterator[*FileInfo]

func (f StepResolverFunc) Resolve(ctx context.Context, req *http.Request, part *Part) (provider.Iterator[*FileInfo], error) {
	var it provider.Iterator[*FileInfo]
	err := async.Capture(func() error {
		it = f(ctx, req, part)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if it == nil {
		return provider.FromSlice[*FileInfo](), nil
	}
	return it, nil
}

// GenerateResolver builds a step-wise resolver from a producer that yields
// steps from its own goroutine.
//
//	gridfs.GenerateResolver(func(ctx context.Context, r *http.Request, p *gridfs.Part, yield func(*gridfs.FileInfo) error) error {
//	    if err := yield(&gridfs.FileInfo{Filename: p.OriginalName}); err != nil {
//	        return err
//	    }
//	    owner, err := lookupOwner(ctx, r)
//	    if err != nil {
//	        return err
//	    }
//	    return yield(&gridfs.FileInfo{Metadata: map[string]any{"owner": owner}})
//	})
func GenerateResolver(produce func(ctx context.Context, req *http.Request, part *Part, yield func(*FileInfo) error) error) Resolver {
	return StepResolverFunc(func(reqCtx context.Context, req *http.Request, part *Part) provider.Iterator[*FileInfo] {
		return provider.Generate(func(genCtx context.Context, yield func(*FileInfo) error) error {
			// The producer stops when either the request or the iterator ends.
			ctx, cancel := context.WithCancel(reqCtx)
			defer cancel()
			stop := context.AfterFunc(genCtx, cancel)
			defer stop()
			return produce(ctx, req, part, yield)
		})
	})
}

// StaticResolver returns the same metadata for every file.
func StaticResolver(info FileInfo) Resolver {
	return ResolverFunc(func(context.Context, *http.Request, *Part) (*FileInfo, error) {
		cp := info
		return &cp, nil
	})
}

type defaultResolver struct{}

func (defaultResolver) Resolve(context.Context, *http.Request, *Part) (provider.Iterator[*FileInfo], error) {
	return provider.FromSlice[*FileInfo](), nil
}

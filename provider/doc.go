// Package provider holds the small generic building blocks shared by the
// pluggable parts of gridstore.
//
// A Provider is a named backend that can report availability. Providers are
// created through a Registry of named factories, which is how storage
// drivers are looked up by URL scheme:
//
//	reg := provider.NewRegistry[gridfs.Driver]()
//	reg.RegisterFactory("mongodb", mongodb.NewDriver)
//	drv, err := reg.Create("mongodb", nil)
//
// An Iterator gives pull-based access to a lazy, finite sequence of values.
// It is the contract behind step-wise metadata resolvers. Iterators can be
// built from a slice, a single value, a next function, or a producer
// goroutine:
//
//	it := provider.Generate(func(ctx context.Context, yield func(*Info) error) error {
//	    if err := yield(&Info{Filename: "draft"}); err != nil {
//	        return err
//	    }
//	    return yield(&Info{Filename: "final"})
//	})
//	defer it.Close()
package provider

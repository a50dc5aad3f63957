// Package bootstrap runs a gridstore process: it validates the config,
// initializes logging, starts registered components in order, waits for a
// signal and shuts everything down in reverse.
//
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	app.RegisterComponent(storage.Component())
//	app.RegisterComponent(server.NewComponent(srv))
//	return app.Run(ctx)
package bootstrap

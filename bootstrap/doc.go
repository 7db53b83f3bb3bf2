// Package bootstrap wires a backendkit process together: it loads the
// application config, registers the built-in provider factories, registers
// the configured providers, starts the registry and the admin API, and
// shuts everything down in reverse on a signal.
//
//	var cfg bootstrap.Config
//	if err := config.LoadConfig("backendkit", &cfg); err != nil {
//	    return err
//	}
//	app, err := bootstrap.NewApp(&cfg)
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
package bootstrap

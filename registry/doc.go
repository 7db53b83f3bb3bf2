// Package registry registers provider factories, instantiates configured
// providers and drives them through their lifecycle in dependency order.
//
// A Registry is constructed explicitly and passed to whatever needs it;
// the process entry point owns its lifecycle:
//
//	reg := registry.New(registry.WithConfig(cfg.Registry))
//	_ = reg.RegisterFactory(database.NewFactory())
//	_, _ = reg.RegisterProvider(ctx, "db", provider.TypeDatabase, dbCfg)
//	if err := reg.Start(ctx); err != nil { ... }
//	defer reg.Destroy(context.Background())
//
// Configuration-time failures (registration, dependency resolution, a
// single StartProvider or StopProvider) are returned to the caller. Bulk
// operations and the background monitors are best effort: a failing
// provider is marked failed, an event is recorded and the remaining
// providers are still processed. Inspect HealthSummary and AllEvents after
// a bulk call to learn about partial failures.
//
// Event subscribers run synchronously on the goroutine that emitted the
// event, often while a lifecycle operation is in progress. They must not
// call lifecycle or configuration methods of the same Registry directly;
// hand the work to another goroutine instead.
package registry

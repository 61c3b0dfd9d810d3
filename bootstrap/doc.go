// Package bootstrap wires the container, the dispatch factory and the event
// sources of one process together and runs them through a single lifecycle.
//
// NewApp takes a typed configuration embedding config.ServiceConfig. Sources
// declared under sources: are built immediately but only registered as
// components at startup, after every category, so they start last and stop
// first.
//
//	type Config struct {
//	    config.ServiceConfig `mapstructure:",squash"`
//	}
//
//	app, err := bootstrap.NewApp(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	_ = app.Register(Ledger)
//	orders, _ := app.KeyedCategory("orders", "orders", nil)
//	_ = orders.Listen(ctx, "created", Ledger, "OnOrder", dispatch.WithArgs(params.Key(0, "data")))
//	if err := app.Run(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Startup runs configure callbacks, starts components, runs OnStart hooks,
// initializes every registered service and then runs OnReady hooks. Stop
// runs OnStop hooks, stops components in reverse order and closes the
// container.
package bootstrap

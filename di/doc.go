// Package di provides the singleton lifecycle manager for eventkit services.
//
// A service is described by a Definition: a name, a constructor, an explicit
// ordered dependency list and an optional init body. Definitions are
// registered once with a Container, the process composition root. Resolving
// a definition constructs its dependencies first, then the service itself,
// exactly once; later resolutions return the same Instance.
//
// # Definition
//
//	var Store = di.Define("store", func(ctx context.Context, _ di.Deps) (*Store, error) {
//	    return &Store{}, nil
//	}, di.WithInit(func(ctx context.Context, s *Store) error { return s.Open(ctx) }))
//
//	var Mailer = di.Define("mailer", func(ctx context.Context, deps di.Deps) (*Mailer, error) {
//	    store, err := di.Dep[*Store](deps, 0)
//	    if err != nil {
//	        return nil, err
//	    }
//	    return &Mailer{store: store}, nil
//	}, di.DependsOn(Store))
//
// # Initialization
//
// Instance.Init runs every dependency's Init, then the service's own init
// body, at most once even under concurrent callers. A failed Init leaves the
// instance uninitialized so the next call retries the chain.
//
// # Resolution
//
//	mailer, err := di.Resolve[*Mailer](ctx, container, Mailer)
package di

// Package provider defines the contract every pluggable backend implements
// and the factory contract used to construct them.
//
// A provider reports an explicit capability set instead of being probed for
// optional methods. Embedding Base supplies inert defaults for every
// capability-gated method, so a basic provider only overrides the lifecycle
// hooks it needs:
//
//	type Mailer struct {
//	    *provider.Base
//	}
//
//	func New(cfg provider.Config) *Mailer {
//	    return &Mailer{Base: provider.NewBase(cfg, "1.0.0")}
//	}
//
// Factories declare the types they support and validate configuration
// before the registry asks them to construct anything. NewFactory builds a
// Factory from plain functions.
package provider

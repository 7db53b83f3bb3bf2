package registry

import (
	"context"
	"maps"
	"slices"

	"github.com/kbukum/backendkit/errors"
	"github.com/kbukum/backendkit/logger"
	"github.com/kbukum/backendkit/provider"
)

// ResolveDependencies checks that every declared dependency is registered
// and that the graph is acyclic, then injects dependencies into providers
// declaring dependency injection. The first missing dependency aborts with
// a DEPENDENCY_ERROR naming both providers.
func (r *Registry) ResolveDependencies(ctx context.Context) error {
	type injection struct {
		target provider.Provider
		name   string
		deps   map[string]provider.Provider
	}

	r.mu.RLock()
	var injections []injection
	for _, name := range r.order {
		inst := r.instances[name]
		for _, dep := range inst.dependencies {
			if _, ok := r.instances[dep]; !ok {
				r.mu.RUnlock()
				return errors.Dependency(name, dep)
			}
		}
		if inst.p.Capabilities().Has(provider.CapDependencyInjection) && len(inst.dependencies) > 0 {
			inj := injection{target: inst.p, name: name, deps: make(map[string]provider.Provider, len(inst.dependencies))}
			for _, dep := range inst.dependencies {
				inj.deps[dep] = r.instances[dep].p
			}
			injections = append(injections, inj)
		}
	}
	_, err := r.startupOrderLocked()
	r.mu.RUnlock()
	if err != nil {
		return err
	}

	for _, inj := range injections {
		for _, dep := range slices.Sorted(maps.Keys(inj.deps)) {
			if err := inj.target.SetDependency(dep, inj.deps[dep]); err != nil {
				return errors.Lifecycle("inject_dependency", inj.name, err).WithDetail("dependency", dep)
			}
		}
	}

	r.log.Debug("dependencies resolved", logger.Fields("injections", len(injections)))
	return nil
}

// StartupOrder returns provider names so that every provider follows all
// of its transitive dependencies. Ties keep registration order. A cycle
// fails with CIRCULAR_DEPENDENCY carrying the full cycle path. Unknown
// dependencies are skipped here; ResolveDependencies reports them.
func (r *Registry) StartupOrder() ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.startupOrderLocked()
}

// ShutdownOrder is the reverse of StartupOrder.
func (r *Registry) ShutdownOrder() ([]string, error) {
	order, err := r.StartupOrder()
	if err != nil {
		return nil, err
	}
	slices.Reverse(order)
	return order, nil
}

func (r *Registry) startupOrderLocked() ([]string, error) {
	graph := make(map[string][]string, len(r.order))
	for _, name := range r.order {
		graph[name] = r.instances[name].dependencies
	}
	return topoSort(r.order, graph)
}

// topoSort is a depth-first post-order sort over names. A node met again
// while still on the visit stack closes a cycle.
func topoSort(names []string, graph map[string][]string) ([]string, error) {
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[string]int, len(names))
	order := make([]string, 0, len(names))
	var stack []string

	var visit func(string) error
	visit = func(n string) error {
		switch state[n] {
		case visited:
			return nil
		case visiting:
			start := slices.Index(stack, n)
			path := append(slices.Clone(stack[start:]), n)
			return errors.CircularDependency(path)
		}
		state[n] = visiting
		stack = append(stack, n)
		for _, dep := range graph[n] {
			if _, known := graph[dep]; !known {
				continue
			}
			if err := visit(dep); err != nil {
				return err
			}
		}
		stack = stack[:len(stack)-1]
		state[n] = visited
		order = append(order, n)
		return nil
	}

	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}

// checkDependencies reports whether name may depend on deps: every
// dependency must be registered and the graph with name's edges replaced
// must stay acyclic.
func (r *Registry) checkDependencies(name string, deps []string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, dep := range deps {
		if _, ok := r.instances[dep]; !ok {
			return errors.Dependency(name, dep)
		}
	}
	graph := make(map[string][]string, len(r.order))
	for _, n := range r.order {
		graph[n] = r.instances[n].dependencies
	}
	graph[name] = deps
	_, err := topoSort(r.order, graph)
	return err
}

// withDependencies returns names plus everything they transitively depend
// on.
func (r *Registry) withDependencies(names []string) map[string]bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := make(map[string]bool)
	var walk func(string)
	walk = func(n string) {
		if set[n] {
			return
		}
		inst, ok := r.instances[n]
		if !ok {
			return
		}
		set[n] = true
		for _, dep := range inst.dependencies {
			walk(dep)
		}
	}
	for _, n := range names {
		walk(n)
	}
	return set
}

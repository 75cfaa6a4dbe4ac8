package harness

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"

	"merit/pkg/logging"
)

// CleanupFunc releases a resolved resource. Returned by factories that need
// teardown; invoked by the resolver in reverse-acquisition order.
type CleanupFunc func(ctx context.Context) error

// FactoryFunc constructs a resource value. Dependencies declared on the
// ResourceDef are delivered resolved in deps, keyed by name. A nil
// CleanupFunc means the resource needs no teardown.
type FactoryFunc func(ctx context.Context, deps map[string]any) (any, CleanupFunc, error)

// ResourceDef is a named factory registration.
type ResourceDef struct {
	// Name is the unique resource name tests and other factories refer to.
	Name string
	// Scope is the resource lifetime.
	Scope Scope
	// Deps lists the names of resources this factory depends on. Explicit
	// declaration replaces signature inference: what you list is what you
	// get, statically visible at the registration site.
	Deps []string
	// Factory constructs the value.
	Factory FactoryFunc
}

// ResourceRegistry holds resource definitions. Registered once at process
// start; read-mostly afterwards.
type ResourceRegistry struct {
	mu   sync.RWMutex
	defs map[string]ResourceDef
}

// NewResourceRegistry creates an empty registry.
func NewResourceRegistry() *ResourceRegistry {
	return &ResourceRegistry{defs: map[string]ResourceDef{}}
}

// Register adds a definition. Duplicate names, missing factories, and
// unknown scopes are configuration errors.
func (r *ResourceRegistry) Register(def ResourceDef) error {
	if def.Name == "" {
		return &ConfigurationError{Subject: "resource", Reason: "resource has no name"}
	}
	if def.Factory == nil {
		return &ConfigurationError{Subject: def.Name, Reason: "resource has no factory"}
	}
	switch def.Scope {
	case ScopeCase, ScopeSuite, ScopeSession:
	case "":
		def.Scope = ScopeCase
	default:
		return &ConfigurationError{Subject: def.Name, Reason: "unknown scope " + string(def.Scope)}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.defs[def.Name]; exists {
		return &ConfigurationError{Subject: def.Name, Reason: "resource name already registered"}
	}
	r.defs[def.Name] = def
	return nil
}

// Lookup returns the definition for name.
func (r *ResourceRegistry) Lookup(name string) (ResourceDef, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.defs[name]
	return def, ok
}

var defaultResources = NewResourceRegistry()

// DefaultResources returns the process-wide resource registry.
func DefaultResources() *ResourceRegistry { return defaultResources }

// RegisterResource adds a definition to the default registry, panicking on
// configuration errors.
func RegisterResource(def ResourceDef) {
	if err := defaultResources.Register(def); err != nil {
		panic(err)
	}
}

type cacheKey struct {
	scope Scope
	name  string
}

type teardownEntry struct {
	scope   Scope
	name    string
	cleanup CleanupFunc
}

// Resolver resolves, caches, and tears down resources for one scope chain:
// a root resolver owns SUITE/SESSION entries, per-case children forked from
// it own CASE entries. SUITE/SESSION resolution always delegates to the
// root, however many forks deep the request originates, so a shared
// resource is constructed at most once per run and its teardown belongs to
// the root.
//
// The resolver does not guard shared resources against partial mutation by
// test bodies; in particular, an item cancelled by the per-item timeout may
// leave a SUITE/SESSION resource in whatever state its body reached, and
// later items observe that state.
type Resolver struct {
	registry *ResourceRegistry
	parent   *Resolver

	mu        sync.Mutex
	cache     map[cacheKey]any
	teardowns []teardownEntry
	group     singleflight.Group
}

// NewResolver creates a root resolver over the given registry.
func NewResolver(registry *ResourceRegistry) *Resolver {
	return &Resolver{
		registry: registry,
		cache:    map[cacheKey]any{},
	}
}

// ForkForCase creates a child resolver for one test item. The child shares
// the root's SUITE/SESSION cache by reference, without copying any
// underlying resource, while CASE resources resolved inside the child are
// fresh instances owned and torn down by the child.
func (r *Resolver) ForkForCase() *Resolver {
	return &Resolver{
		registry: r.registry,
		parent:   r,
		cache:    map[cacheKey]any{},
	}
}

// root walks to the ultimate root of the fork chain.
func (r *Resolver) root() *Resolver {
	cur := r
	for cur.parent != nil {
		cur = cur.parent
	}
	return cur
}

// Resolve returns the value for name, first resolving all of its declared
// dependencies depth-first. Values are cached per (scope, name) for the
// lifetime of the owning resolver. Unknown names fail with
// *ResourceNotFoundError.
func (r *Resolver) Resolve(ctx context.Context, name string) (any, error) {
	def, ok := r.registry.Lookup(name)
	if !ok {
		return nil, &ResourceNotFoundError{Name: name}
	}
	if def.Scope == ScopeCase {
		return r.resolveCase(ctx, def)
	}
	return r.root().resolveShared(ctx, def)
}

// ResolveMany resolves several names into a name-keyed map.
func (r *Resolver) ResolveMany(ctx context.Context, names []string) (map[string]any, error) {
	out := make(map[string]any, len(names))
	for _, name := range names {
		value, err := r.Resolve(ctx, name)
		if err != nil {
			return nil, err
		}
		out[name] = value
	}
	return out, nil
}

func (r *Resolver) resolveCase(ctx context.Context, def ResourceDef) (any, error) {
	key := cacheKey{ScopeCase, def.Name}

	r.mu.Lock()
	if value, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return value, nil
	}
	r.mu.Unlock()

	value, cleanup, err := r.construct(ctx, def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.cache[key] = value
	if cleanup != nil {
		r.teardowns = append(r.teardowns, teardownEntry{ScopeCase, def.Name, cleanup})
	}
	r.mu.Unlock()
	return value, nil
}

// resolveShared runs on the root only. Concurrent first resolutions of the
// same resource from parallel items collapse to a single factory call.
func (r *Resolver) resolveShared(ctx context.Context, def ResourceDef) (any, error) {
	key := cacheKey{def.Scope, def.Name}

	r.mu.Lock()
	if value, ok := r.cache[key]; ok {
		r.mu.Unlock()
		return value, nil
	}
	r.mu.Unlock()

	value, err, _ := r.group.Do(def.Name, func() (any, error) {
		r.mu.Lock()
		if value, ok := r.cache[key]; ok {
			r.mu.Unlock()
			return value, nil
		}
		r.mu.Unlock()

		value, cleanup, err := r.construct(ctx, def)
		if err != nil {
			return nil, err
		}

		r.mu.Lock()
		r.cache[key] = value
		if cleanup != nil {
			r.teardowns = append(r.teardowns, teardownEntry{def.Scope, def.Name, cleanup})
		}
		r.mu.Unlock()
		return value, nil
	})
	return value, err
}

// construct resolves the definition's dependencies and calls its factory.
// Shared-scope dependencies of a CASE resource resolve through the root as
// usual; the reverse (a shared resource pulling in a CASE dependency) binds
// that dependency to the root's lifetime.
func (r *Resolver) construct(ctx context.Context, def ResourceDef) (any, CleanupFunc, error) {
	deps := make(map[string]any, len(def.Deps))
	for _, dep := range def.Deps {
		value, err := r.Resolve(ctx, dep)
		if err != nil {
			return nil, nil, err
		}
		deps[dep] = value
	}
	return def.Factory(ctx, deps)
}

// CachedValues returns the currently cached values of the given scope,
// keyed by resource name. Used by the runner to collect metric accumulators
// at the end of a run.
func (r *Resolver) CachedValues(scope Scope) map[string]any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[string]any{}
	for key, value := range r.cache {
		if key.scope == scope {
			out[key.name] = value
		}
	}
	return out
}

// TeardownScope tears down and evicts only the entries of the given scope,
// in reverse order of acquisition. Cleanup errors are logged and joined
// into the returned error; they never stop the remaining teardowns.
func (r *Resolver) TeardownScope(ctx context.Context, scope Scope) error {
	r.mu.Lock()
	var toRun []teardownEntry
	var remaining []teardownEntry
	for i := len(r.teardowns) - 1; i >= 0; i-- {
		entry := r.teardowns[i]
		if entry.scope == scope {
			toRun = append(toRun, entry)
		} else {
			remaining = append([]teardownEntry{entry}, remaining...)
		}
	}
	r.teardowns = remaining
	for key := range r.cache {
		if key.scope == scope {
			delete(r.cache, key)
		}
	}
	r.mu.Unlock()

	return r.runCleanups(ctx, toRun)
}

// Teardown tears down everything remaining in this resolver, LIFO.
func (r *Resolver) Teardown(ctx context.Context) error {
	r.mu.Lock()
	toRun := make([]teardownEntry, 0, len(r.teardowns))
	for i := len(r.teardowns) - 1; i >= 0; i-- {
		toRun = append(toRun, r.teardowns[i])
	}
	r.teardowns = nil
	r.cache = map[cacheKey]any{}
	r.mu.Unlock()

	return r.runCleanups(ctx, toRun)
}

func (r *Resolver) runCleanups(ctx context.Context, entries []teardownEntry) error {
	var errs []error
	for _, entry := range entries {
		if err := entry.cleanup(ctx); err != nil {
			logging.Error("Resolver", err, "teardown of %q failed", entry.name)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

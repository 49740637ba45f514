package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// Registry errors.
var (
	// ErrUnknownProvider indicates no factory is registered for the name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrNotRegistered indicates no live adapter exists for the name.
	ErrNotRegistered = errors.New("provider not registered")
)

// Factory constructs an uninitialized adapter for a provider.
type Factory func() Adapter

// Registry owns the set of live adapters, keyed by provider name.
// Mutations are serialized relative to the reads used for dispatch
// decisions; strategies take a Snapshot at selection time so an
// adapter removed mid-dispatch cannot disappear under them.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	adapters  map[string]Adapter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		adapters:  make(map[string]Adapter),
	}
}

// RegisterFactory registers (or replaces) the factory for a provider
// name. Already-created adapters are unaffected.
func (r *Registry) RegisterFactory(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create constructs and initializes an adapter from its factory and
// stores it under the provider name, replacing any previous instance.
// Initialization failure is fail-closed: the error is returned and no
// adapter is stored.
func (r *Registry) Create(ctx context.Context, name string, cfg Config) (Adapter, error) {
	r.mu.Lock()
	factory, ok := r.factories[name]
	r.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, name)
	}

	adapter := factory()
	if cfg.Name == "" {
		cfg.Name = name
	}
	if err := adapter.Initialize(ctx, cfg); err != nil {
		return nil, fmt.Errorf("initialize %s: %w", name, err)
	}

	r.mu.Lock()
	r.adapters[name] = adapter
	r.mu.Unlock()

	return adapter, nil
}

// Register stores an already-initialized adapter under its name.
// Last write wins.
func (r *Registry) Register(adapter Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[adapter.Name()] = adapter
}

// Get returns the live adapter for a provider name.
func (r *Registry) Get(name string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	return adapter, nil
}

// Remove deletes an adapter without shutting it down.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.adapters, name)
}

// Names returns the registered provider names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	return names
}

// Snapshot returns a copy of the current name → adapter mapping.
// Dispatch strategies work from a snapshot so concurrent Create or
// Remove calls cannot change the set mid-strategy.
func (r *Registry) Snapshot() map[string]Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap := make(map[string]Adapter, len(r.adapters))
	for name, adapter := range r.adapters {
		snap[name] = adapter
	}
	return snap
}

// Healthy returns the adapters that are ready and whose last known
// health is StatusHealthy. Used by strategies that need a pool rather
// than a single named provider.
func (r *Registry) Healthy(ctx context.Context) []Adapter {
	snap := r.Snapshot()
	healthy := make([]Adapter, 0, len(snap))
	for _, adapter := range snap {
		if !adapter.Ready() {
			continue
		}
		if adapter.CheckHealth(ctx).Status == StatusHealthy {
			healthy = append(healthy, adapter)
		}
	}
	return healthy
}

// Shutdown shuts down every adapter concurrently and waits for all of
// them to settle before clearing the map. A failure on one adapter
// does not block releasing the others; the first error is returned.
func (r *Registry) Shutdown(ctx context.Context) error {
	snap := r.Snapshot()

	var wg sync.WaitGroup
	errCh := make(chan error, len(snap))
	for _, adapter := range snap {
		wg.Add(1)
		go func(a Adapter) {
			defer wg.Done()
			if err := a.Shutdown(ctx); err != nil {
				errCh <- fmt.Errorf("shutdown %s: %w", a.Name(), err)
			}
		}(adapter)
	}
	wg.Wait()
	close(errCh)

	r.mu.Lock()
	r.adapters = make(map[string]Adapter)
	r.mu.Unlock()

	return <-errCh
}

package source

import (
	"fmt"
	"sort"
	"sync"

	"github.com/c360/vehiclehub/errors"
)

// Registry maps source identifiers to factory functions. It replaces
// runtime type resolution with explicit registration: a source is
// selectable at runtime exactly when some package registered a factory
// for its identifier.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty source registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// RegisterFactory registers factory under identifier. Registering an
// identifier twice is an error.
func (r *Registry) RegisterFactory(identifier string, factory Factory) error {
	if identifier == "" {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "RegisterFactory", "identifier validation")
	}
	if factory == nil {
		return errors.WrapInvalid(errors.ErrInvalidConfig,
			"Registry", "RegisterFactory", "factory validation")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[identifier]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("source %q is already registered", identifier),
			"Registry", "RegisterFactory", "duplicate registration check")
	}

	r.factories[identifier] = factory
	return nil
}

// Resolve returns the factory registered under identifier.
func (r *Registry) Resolve(identifier string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	factory, exists := r.factories[identifier]
	if !exists {
		return nil, errors.WrapInvalid(
			fmt.Errorf("%w: %q", errors.ErrSourceNotFound, identifier),
			"Registry", "Resolve", "factory lookup")
	}
	return factory, nil
}

// Identifiers returns the sorted identifiers of all registered sources.
func (r *Registry) Identifiers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.factories))
	for id := range r.factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

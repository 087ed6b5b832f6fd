package core

import (
	"fmt"
	"sync"
)

// Global registry for engine self-registration via init().
var globalRegistry = &Registry{
	prototypes: make(map[string]Engine),
	engines:    make(map[string]Engine),
}

// Registry holds engine prototypes (keyed by type) and configured engine
// instances (keyed by instance name). Instances are created at startup from
// configuration and never replaced at call time.
type Registry struct {
	prototypes map[string]Engine
	engines    map[string]Engine
	mu         sync.RWMutex
}

func NewRegistry() *Registry {
	return &Registry{
		prototypes: make(map[string]Engine),
		engines:    make(map[string]Engine),
	}
}

// RegisterEnginePrototype allows engine packages to register themselves
// during init().
func RegisterEnginePrototype(engineType string, prototype Engine) {
	globalRegistry.mu.Lock()
	defer globalRegistry.mu.Unlock()
	globalRegistry.prototypes[engineType] = prototype
}

// GetGlobalRegistry returns a registry seeded with all self-registered
// prototypes. Callers get their own instance map so tests stay isolated.
func GetGlobalRegistry() *Registry {
	globalRegistry.mu.RLock()
	defer globalRegistry.mu.RUnlock()

	registry := NewRegistry()
	for name, prototype := range globalRegistry.prototypes {
		registry.prototypes[name] = prototype
	}
	return registry
}

func (r *Registry) RegisterPrototype(engineType string, prototype Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.prototypes[engineType]; exists {
		return fmt.Errorf("engine prototype %s already registered", engineType)
	}

	r.prototypes[engineType] = prototype
	return nil
}

// PrototypeConfigType returns an empty config struct for the given engine
// type, used when decoding per-engine configuration subtrees.
func (r *Registry) PrototypeConfigType(engineType string) (interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	prototype, exists := r.prototypes[engineType]
	if !exists {
		return nil, fmt.Errorf("engine prototype %s not found", engineType)
	}
	return prototype.ConfigType(), nil
}

// CreateEngine instantiates a configured engine from its type prototype.
// An existing instance with the same name is closed and replaced.
func (r *Registry) CreateEngine(instanceName, engineType string, config interface{}) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prototype, exists := r.prototypes[engineType]
	if !exists {
		return fmt.Errorf("engine prototype %s not found", engineType)
	}

	if validator, ok := config.(interface{ Validate() error }); ok {
		if err := validator.Validate(); err != nil {
			return fmt.Errorf("invalid config for engine %s: %w", instanceName, err)
		}
	}

	engine, err := prototype.Factory(instanceName, config)
	if err != nil {
		return fmt.Errorf("creating engine %s: %w", instanceName, err)
	}

	if existing, exists := r.engines[instanceName]; exists {
		if err := existing.Close(); err != nil {
			return fmt.Errorf("closing existing engine %s: %w", instanceName, err)
		}
	}

	r.engines[instanceName] = engine
	return nil
}

// ReplaceEngine swaps a registered instance without closing the previous
// one. Used to install wrappers that share the original's resources.
func (r *Registry) ReplaceEngine(name string, engine Engine) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.engines[name]; !exists {
		return fmt.Errorf("engine %s not found", name)
	}

	r.engines[name] = engine
	return nil
}

func (r *Registry) GetEngine(name string) (Engine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	engine, exists := r.engines[name]
	if !exists {
		return nil, fmt.Errorf("engine %s not found", name)
	}

	return engine, nil
}

func (r *Registry) GetAllEngines() map[string]Engine {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[string]Engine, len(r.engines))
	for name, engine := range r.engines {
		result[name] = engine
	}
	return result
}

func (r *Registry) ListEngines() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.engines))
	for name := range r.engines {
		names = append(names, name)
	}
	return names
}

func (r *Registry) RemoveEngine(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	engine, exists := r.engines[name]
	if !exists {
		return fmt.Errorf("engine %s not found", name)
	}

	if err := engine.Close(); err != nil {
		return fmt.Errorf("closing engine %s: %w", name, err)
	}

	delete(r.engines, name)
	return nil
}

func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for name, engine := range r.engines {
		if err := engine.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing engine %s: %w", name, err))
		}
	}

	r.engines = make(map[string]Engine)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing engines: %v", errs)
	}

	return nil
}

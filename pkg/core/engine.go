package core

import (
	"context"
	"time"
)

// Capabilities declares what an engine type can do. The dispatcher and the
// paging coordinator consult this instead of probing engines at call time.
type Capabilities struct {
	// Paging is true when the engine can serve pages beyond the first.
	Paging bool

	// MaxPage bounds how deep paging is supported. Zero means no known bound.
	MaxPage int

	// SafeSearch is true when the engine honours safesearch levels.
	SafeSearch bool

	// TimeRange is true when the engine can restrict results by recency.
	TimeRange bool

	// Locales lists the BCP-47 language tags the engine can serve. Empty
	// means language-agnostic.
	Locales []string
}

// Engine is the capability contract every upstream provider adapter
// implements. Engines are self-contained: they know how to talk to their
// upstream, declare their capabilities, and manage their own configuration.
//
// Type vs Name follows the usual instance pattern: Type is the adapter kind
// (e.g. "wikipedia"), Name the configured instance (e.g. "wikipedia_de").
// Engines are created once at startup from configuration and never mutated
// at call time.
//
// Registration pattern:
//
//	func init() {
//		core.RegisterEnginePrototype("myengine", &Engine{})
//	}
type Engine interface {
	// Type returns the adapter kind identifier, constant per implementation.
	Type() string

	// Name returns the configured instance name. This is what appears in
	// result attribution and diagnostics.
	Name() string

	// Fetch performs one upstream request for the given query and returns
	// the raw results in upstream order. It must respect ctx cancellation;
	// the processor enforces the per-engine timeout through ctx. Raw results
	// are only interpreted by the normalizer.
	Fetch(ctx context.Context, query Query) ([]RawResult, error)

	// Capabilities reports the engine's declared capabilities.
	Capabilities() Capabilities

	// Categories returns the engine's default category tags.
	Categories() []string

	// Weight scales this engine's scores during merging. 1.0 is neutral.
	Weight() float64

	// Timeout returns the per-engine timeout override, or 0 to use the
	// global request timeout.
	Timeout() time.Duration

	// ConfigType returns a pointer to an empty configuration struct of the
	// type Factory expects.
	ConfigType() interface{}

	// Factory creates a configured instance of this engine type. config may
	// be nil for defaults. The returned engine is ready to Fetch.
	Factory(instanceName string, config interface{}) (Engine, error)

	// Close releases any resources held by the engine.
	Close() error
}

type categoryOverride struct {
	Engine
	categories []string
}

func (c categoryOverride) Categories() []string {
	return c.categories
}

// OverrideCategories returns an engine reporting the given category tags and
// delegating everything else to e. Configuration uses this to retag an
// engine instance without touching the adapter.
func OverrideCategories(e Engine, categories []string) Engine {
	return categoryOverride{Engine: e, categories: categories}
}

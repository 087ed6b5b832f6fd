// Package plugins defines the hook points around a search: query hooks run
// before dispatch and may rewrite the query, result hooks run on the main
// results after merging and scoring are finished.
package plugins

import (
	"fmt"
	"sync"

	"github.com/metisearch/metis/pkg/core"
)

// QueryHook inspects or rewrites a query before engine selection. Returning
// an error aborts the search.
type QueryHook interface {
	Name() string
	OnQuery(query core.Query) (core.Query, error)
}

// ResultHook transforms a single finalized main result. It runs after
// deduplication and scoring, so it cannot influence either. Returning
// keep=false drops the record from the output.
type ResultHook interface {
	Name() string
	OnResult(record core.ResultRecord) (out core.ResultRecord, keep bool)
}

// Registry holds the enabled hooks in registration order.
type Registry struct {
	mu          sync.RWMutex
	queryHooks  []QueryHook
	resultHooks []ResultHook
}

func NewRegistry() *Registry {
	return &Registry{}
}

func (r *Registry) AddQueryHook(h QueryHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queryHooks = append(r.queryHooks, h)
}

func (r *Registry) AddResultHook(h ResultHook) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resultHooks = append(r.resultHooks, h)
}

// ApplyQueryHooks runs every query hook in order, feeding each the previous
// hook's output.
func (r *Registry) ApplyQueryHooks(query core.Query) (core.Query, error) {
	r.mu.RLock()
	hooks := r.queryHooks
	r.mu.RUnlock()

	for _, h := range hooks {
		var err error
		query, err = h.OnQuery(query)
		if err != nil {
			return query, fmt.Errorf("query hook %s: %w", h.Name(), err)
		}
	}
	return query, nil
}

// ApplyResultHooks runs every result hook on the record. The first hook that
// drops it wins.
func (r *Registry) ApplyResultHooks(record core.ResultRecord) (core.ResultRecord, bool) {
	r.mu.RLock()
	hooks := r.resultHooks
	r.mu.RUnlock()

	for _, h := range hooks {
		var keep bool
		record, keep = h.OnResult(record)
		if !keep {
			return record, false
		}
	}
	return record, true
}

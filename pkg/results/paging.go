package results

import (
	"sort"

	"github.com/metisearch/metis/pkg/core"
)

// PagingState tracks which engines can serve the page after the one just
// searched. The dispatcher feeds it from engine capabilities and outcomes;
// it carries no global state of its own.
type PagingState struct {
	supported map[string]bool
}

func NewPagingState() *PagingState {
	return &PagingState{supported: make(map[string]bool)}
}

// SetSupported records whether the engine can serve the next page.
func (p *PagingState) SetSupported(engine string, ok bool) {
	p.supported[engine] = ok
}

// Available reports whether at least one engine can serve the next page.
func (p *PagingState) Available() bool {
	for _, ok := range p.supported {
		if ok {
			return true
		}
	}
	return false
}

// Engines returns the engines able to serve the next page, sorted.
func (p *PagingState) Engines() []string {
	engines := make([]string, 0, len(p.supported))
	for engine, ok := range p.supported {
		if ok {
			engines = append(engines, engine)
		}
	}
	sort.Strings(engines)
	return engines
}

// NextPageRequest derives the follow-up query for the next page, restricted
// to the engines that can serve it. It is a pure function: the original
// query is never modified, and calling it twice yields identical queries.
func NextPageRequest(query core.Query, state *PagingState) (core.Query, bool) {
	if state == nil || !state.Available() {
		return core.Query{}, false
	}
	next := query.WithPage(query.PageNo + 1)
	next.Engines = state.Engines()
	return next, true
}

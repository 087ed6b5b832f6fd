package dispatch

import (
	"fmt"
	"sort"

	"github.com/metisearch/metis/pkg/core"
)

// DefaultCategory is used when a query names no categories.
const DefaultCategory = "general"

// SelectEngines resolves a query against the registered engine instances:
// explicit engine names win over categories, exclusions always apply, and
// engines that cannot serve the query's language or page depth are skipped.
// An empty resolved selection is an error; searching nothing is never what
// the user meant.
func SelectEngines(engines map[string]core.Engine, query core.Query) ([]core.Engine, error) {
	excluded := make(map[string]bool, len(query.ExcludedEngines))
	for _, name := range query.ExcludedEngines {
		excluded[name] = true
	}

	var selected []core.Engine
	if len(query.Engines) > 0 {
		for _, name := range query.Engines {
			engine, ok := engines[name]
			if !ok {
				return nil, fmt.Errorf("unknown engine %q", name)
			}
			if excluded[name] {
				continue
			}
			selected = append(selected, engine)
		}
	} else {
		categories := query.Categories
		if len(categories) == 0 {
			categories = []string{DefaultCategory}
		}
		for name, engine := range engines {
			if excluded[name] {
				continue
			}
			if categoriesOverlap(engine.Categories(), categories) {
				selected = append(selected, engine)
			}
		}
	}

	filtered := selected[:0]
	for _, engine := range selected {
		caps := engine.Capabilities()
		if !query.LanguageMatches(caps.Locales) {
			continue
		}
		if query.PageNo > 1 {
			if !caps.Paging {
				continue
			}
			if caps.MaxPage > 0 && query.PageNo > caps.MaxPage {
				continue
			}
		}
		filtered = append(filtered, engine)
	}

	if len(filtered) == 0 {
		return nil, fmt.Errorf("no engines can serve this query")
	}

	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].Name() < filtered[j].Name()
	})
	return filtered, nil
}

func categoriesOverlap(have, want []string) bool {
	for _, h := range have {
		for _, w := range want {
			if h == w {
				return true
			}
		}
	}
	return false
}

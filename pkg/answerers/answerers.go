// Package answerers implements the instant-answer producers that run
// alongside engines. An answerer inspects the query locally and, when it
// recognizes a trigger keyword, emits answer records without any network
// traffic.
package answerers

import (
	"context"
	"strings"

	"github.com/metisearch/metis/pkg/core"
)

// Answerer produces answer records for queries matching its trigger
// keywords. Answer must be fast and side-effect free; it shares the search
// deadline with the engines.
type Answerer interface {
	Name() string
	Keywords() []string
	Answer(ctx context.Context, query core.Query) ([]core.ResultRecord, error)
}

// Triggered reports whether the query's first word matches one of the
// answerer's keywords, and returns the remaining terms.
func Triggered(a Answerer, query core.Query) (string, bool) {
	fields := strings.Fields(query.Terms)
	if len(fields) < 1 {
		return "", false
	}
	first := strings.ToLower(fields[0])
	for _, kw := range a.Keywords() {
		if first == kw {
			return strings.Join(fields[1:], " "), true
		}
	}
	return "", false
}

// All returns the builtin answerers.
func All() []Answerer {
	return []Answerer{
		NewRandomAnswerer(),
		NewStatisticsAnswerer(),
	}
}

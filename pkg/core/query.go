package core

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/text/language"
)

// SafeSearch levels mirror what upstream engines commonly accept.
type SafeSearch int

const (
	SafeSearchOff SafeSearch = iota
	SafeSearchModerate
	SafeSearchStrict
)

func (s SafeSearch) String() string {
	switch s {
	case SafeSearchModerate:
		return "moderate"
	case SafeSearchStrict:
		return "strict"
	default:
		return "off"
	}
}

// ParseSafeSearch parses a user-supplied safesearch value. Both the numeric
// form (0/1/2) and the named form are accepted.
func ParseSafeSearch(s string) (SafeSearch, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "0", "off", "none":
		return SafeSearchOff, nil
	case "1", "moderate":
		return SafeSearchModerate, nil
	case "2", "strict":
		return SafeSearchStrict, nil
	}
	return SafeSearchOff, fmt.Errorf("invalid safesearch value %q", s)
}

// TimeRange restricts results to a recency window. Engines that cannot
// express the requested range ignore it.
type TimeRange string

const (
	TimeRangeAny   TimeRange = ""
	TimeRangeDay   TimeRange = "day"
	TimeRangeWeek  TimeRange = "week"
	TimeRangeMonth TimeRange = "month"
	TimeRangeYear  TimeRange = "year"
)

// ParseTimeRange validates a user-supplied time range value.
func ParseTimeRange(s string) (TimeRange, error) {
	switch TimeRange(strings.ToLower(strings.TrimSpace(s))) {
	case TimeRangeAny, TimeRangeDay, TimeRangeWeek, TimeRangeMonth, TimeRangeYear:
		return TimeRange(strings.ToLower(strings.TrimSpace(s))), nil
	}
	return TimeRangeAny, fmt.Errorf("invalid time range %q", s)
}

// Query is the parsed user intent for one search. It is constructed once per
// incoming request and never mutated afterwards; derive variants with WithPage.
type Query struct {
	// ID uniquely identifies this search for logging and diagnostics.
	ID uuid.UUID

	// Terms is the raw search string after bang/filter parsing.
	Terms string

	// Categories selects engine groups ("general", "images", "it", ...).
	// Empty means "general".
	Categories []string

	// Engines restricts the search to specific engine instances. Empty means
	// every enabled engine matching the categories.
	Engines []string

	// ExcludedEngines removes engines from the resolved selection.
	ExcludedEngines []string

	// Language is a BCP-47 tag such as "en" or "de-AT". Engines match it
	// against their supported locales; empty means no preference.
	Language string

	SafeSearch SafeSearch
	TimeRange  TimeRange

	// PageNo is 1-based.
	PageNo int
}

// NewQuery creates a Query with defaults applied.
func NewQuery(terms string) Query {
	return Query{
		ID:     uuid.New(),
		Terms:  strings.TrimSpace(terms),
		PageNo: 1,
	}
}

// WithPage returns a copy of the query pointing at a different page.
// The copy keeps the original ID so diagnostics can correlate pages.
func (q Query) WithPage(pageno int) Query {
	q.PageNo = pageno
	return q
}

// WithTerms returns a copy with rewritten search terms. Used by query hooks.
func (q Query) WithTerms(terms string) Query {
	q.Terms = strings.TrimSpace(terms)
	return q
}

// Validate reports whether the query can be dispatched.
func (q Query) Validate() error {
	if q.Terms == "" {
		return fmt.Errorf("empty query")
	}
	if q.PageNo < 1 {
		return fmt.Errorf("invalid page number %d", q.PageNo)
	}
	if q.Language != "" {
		if _, err := language.Parse(q.Language); err != nil {
			return fmt.Errorf("invalid language tag %q: %w", q.Language, err)
		}
	}
	return nil
}

// LanguageMatches reports whether an engine supporting the given locales can
// serve this query's language preference. An empty preference or an empty
// locale list always matches.
func (q Query) LanguageMatches(locales []string) bool {
	if q.Language == "" || len(locales) == 0 {
		return true
	}
	want, err := language.Parse(q.Language)
	if err != nil {
		return true
	}
	tags := make([]language.Tag, 0, len(locales))
	for _, l := range locales {
		if tag, err := language.Parse(l); err == nil {
			tags = append(tags, tag)
		}
	}
	if len(tags) == 0 {
		return true
	}
	_, _, conf := language.NewMatcher(tags).Match(want)
	return conf > language.No
}

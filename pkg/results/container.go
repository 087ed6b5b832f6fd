// Package results implements the result container: the single accumulator
// all engine outcomes merge into, with URL deduplication, score combination
// and the deterministic final ordering. A container is only ever mutated by
// one goroutine at a time; the dispatcher guarantees that by consuming
// outcomes from a single channel.
package results

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/normalize"
)

// ScoreRule selects how duplicate scores are combined.
type ScoreRule string

const (
	RuleSum ScoreRule = "sum"
	RuleMax ScoreRule = "max"
	RuleAvg ScoreRule = "avg"
)

// ParseScoreRule validates a configured rule name.
func ParseScoreRule(s string) (ScoreRule, error) {
	switch ScoreRule(s) {
	case "", RuleSum:
		return RuleSum, nil
	case RuleMax, RuleAvg:
		return ScoreRule(s), nil
	}
	return RuleSum, fmt.Errorf("invalid score rule %q", s)
}

// EngineError is the user-visible diagnostic entry for one failed engine.
type EngineError struct {
	Engine  string `json:"engine"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// EngineTiming summarizes one engine's contribution for diagnostics.
type EngineTiming struct {
	Engine  string        `json:"engine"`
	Elapsed time.Duration `json:"elapsed"`
	Results int           `json:"results"`
}

// MergedRecord is a main result after deduplication: the first-seen record
// (upgraded with richer metadata from later engines) plus the combined score
// and the full engine attribution list.
type MergedRecord struct {
	core.ResultRecord
	Engines []string `json:"engines"`
	Score   float64  `json:"score"`
}

// MergedInfobox is an infobox with its attribution after title-merging.
type MergedInfobox struct {
	core.Infobox
	Engines []string `json:"engines"`
}

type mergedEntry struct {
	record        core.ResultRecord
	engines       []string
	scores        []float64
	positionSum   int
	dispatchOrder int
	key           string
}

// Options configures a container for one search.
type Options struct {
	// Weights maps engine instance names to their score weights.
	Weights map[string]float64

	// Rule is the duplicate score combination rule.
	Rule ScoreRule

	// TrackingParams extends the URL normalization denylist.
	TrackingParams []string

	// DispatchOrder lists the selected engines in dispatch order; it
	// provides the final ordering tie-break independent of arrival order.
	DispatchOrder []string
}

// Container accumulates engine outcomes for one query. After Finalize it is
// logically frozen; further AddOutcome calls are ignored.
type Container struct {
	opts          Options
	dispatchOrder map[string]int

	entries   map[string]*mergedEntry
	nearDup   map[string]string
	keyOrder  []string
	discarded int

	answers        []core.ResultRecord
	answerSeen     map[string]bool
	suggestions    []string
	suggestionSeen map[string]bool
	corrections    []string
	correctionSeen map[string]bool
	infoboxes      []*MergedInfobox

	errors  []EngineError
	timings []EngineTiming

	seenEngines map[string]bool
	finalized   bool
}

func NewContainer(opts Options) *Container {
	if opts.Rule == "" {
		opts.Rule = RuleSum
	}
	dispatchOrder := make(map[string]int, len(opts.DispatchOrder))
	for i, engine := range opts.DispatchOrder {
		dispatchOrder[engine] = i
	}
	return &Container{
		opts:           opts,
		dispatchOrder:  dispatchOrder,
		entries:        make(map[string]*mergedEntry),
		nearDup:        make(map[string]string),
		answerSeen:     make(map[string]bool),
		suggestionSeen: make(map[string]bool),
		correctionSeen: make(map[string]bool),
		seenEngines:    make(map[string]bool),
	}
}

func (c *Container) weight(engine string) float64 {
	if w, ok := c.opts.Weights[engine]; ok && w > 0 {
		return w
	}
	return 1.0
}

// AddOutcome merges one engine's terminal outcome. Duplicate deliveries for
// the same engine are ignored so a redelivered outcome can never double-count
// scores. Failed outcomes contribute diagnostics only.
func (c *Container) AddOutcome(outcome core.EngineOutcome) {
	if c.finalized || c.seenEngines[outcome.Engine] {
		return
	}
	c.seenEngines[outcome.Engine] = true

	c.timings = append(c.timings, EngineTiming{
		Engine:  outcome.Engine,
		Elapsed: outcome.Elapsed,
		Results: len(outcome.Records),
	})

	if outcome.Kind.Failure() {
		c.errors = append(c.errors, EngineError{
			Engine:  outcome.Engine,
			Kind:    string(outcome.Kind),
			Message: outcome.Message(),
		})
		return
	}

	for _, record := range outcome.Records {
		c.mergeRecord(record)
	}
}

func (c *Container) mergeRecord(record core.ResultRecord) {
	switch record.Area {
	case core.AreaMain:
		c.mergeMain(record)
	case core.AreaAnswer:
		if !c.answerSeen[record.Answer] {
			c.answerSeen[record.Answer] = true
			c.answers = append(c.answers, record)
		}
	case core.AreaSuggestion:
		if !c.suggestionSeen[record.Answer] {
			c.suggestionSeen[record.Answer] = true
			c.suggestions = append(c.suggestions, record.Answer)
		}
	case core.AreaCorrection:
		if !c.correctionSeen[record.Answer] {
			c.correctionSeen[record.Answer] = true
			c.corrections = append(c.corrections, record.Answer)
		}
	case core.AreaInfobox:
		c.mergeInfobox(record)
	}
}

func (c *Container) mergeMain(record core.ResultRecord) {
	key, err := normalize.DedupKey(record.URL, c.opts.TrackingParams)
	if err != nil {
		c.discarded++
		return
	}

	entry, exists := c.entries[key]
	if !exists {
		// Near-duplicate fallback: same registrable domain plus folded title.
		if nearKey := normalize.TitleDomainKey(record.URL, record.Title); nearKey != "" {
			if existingKey, ok := c.nearDup[nearKey]; ok {
				entry, exists = c.entries[existingKey], true
			} else {
				c.nearDup[nearKey] = key
			}
		}
	}

	if !exists {
		c.entries[key] = &mergedEntry{
			record:        record,
			engines:       []string{record.Engine},
			scores:        []float64{c.weight(record.Engine) * record.Score},
			positionSum:   record.Position,
			dispatchOrder: c.dispatchOrderOf(record.Engine),
			key:           key,
		}
		c.keyOrder = append(c.keyOrder, key)
		return
	}

	for _, engine := range entry.engines {
		if engine == record.Engine {
			// Same engine repeating the same logical result: first one wins.
			return
		}
	}

	entry.engines = append(entry.engines, record.Engine)
	entry.scores = append(entry.scores, c.weight(record.Engine)*record.Score)
	entry.positionSum += record.Position
	if order := c.dispatchOrderOf(record.Engine); order < entry.dispatchOrder {
		entry.dispatchOrder = order
	}

	// First-seen metadata wins unless a later engine is strictly richer.
	if entry.record.Thumbnail == "" && record.Thumbnail != "" {
		entry.record.Thumbnail = record.Thumbnail
	}
	if entry.record.Content == "" && record.Content != "" {
		entry.record.Content = record.Content
	}
	if entry.record.PublishedAt.IsZero() && !record.PublishedAt.IsZero() {
		entry.record.PublishedAt = record.PublishedAt
	}
}

func (c *Container) mergeInfobox(record core.ResultRecord) {
	incoming := record.Infobox
	for _, existing := range c.infoboxes {
		if existing.Title != incoming.Title {
			continue
		}
		existing.Engines = appendMissing(existing.Engines, record.Engine)
		for _, attr := range incoming.Attributes {
			if !containsAttribute(existing.Attributes, attr) {
				existing.Attributes = append(existing.Attributes, attr)
			}
		}
		for _, link := range incoming.URLs {
			if !containsURL(existing.URLs, link) {
				existing.URLs = append(existing.URLs, link)
			}
		}
		for _, topic := range incoming.RelatedTopics {
			existing.RelatedTopics = appendMissing(existing.RelatedTopics, topic)
		}
		if existing.Content == "" {
			existing.Content = incoming.Content
		}
		if existing.ImageURL == "" {
			existing.ImageURL = incoming.ImageURL
		}
		return
	}

	c.infoboxes = append(c.infoboxes, &MergedInfobox{
		Infobox: *incoming,
		Engines: []string{record.Engine},
	})
}

func (c *Container) dispatchOrderOf(engine string) int {
	if order, ok := c.dispatchOrder[engine]; ok {
		return order
	}
	return len(c.dispatchOrder)
}

func (c *Container) combine(scores []float64) float64 {
	if len(scores) == 0 {
		return 0
	}
	switch c.opts.Rule {
	case RuleMax:
		max := scores[0]
		for _, s := range scores[1:] {
			if s > max {
				max = s
			}
		}
		return max
	case RuleAvg:
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum / float64(len(scores))
	default:
		sum := 0.0
		for _, s := range scores {
			sum += s
		}
		return sum
	}
}

// Frozen is the finalized, immutable result of one aggregated search. It is
// the only artifact handed to rendering.
type Frozen struct {
	Query        core.Query          `json:"-"`
	Main         []MergedRecord      `json:"main"`
	Answers      []core.ResultRecord `json:"answers"`
	Suggestions  []string            `json:"suggestions"`
	Corrections  []string            `json:"corrections"`
	Infoboxes    []MergedInfobox     `json:"infoboxes"`
	EngineErrors []EngineError       `json:"engine_errors"`
	Timings      []EngineTiming      `json:"timings"`
}

// Finalize freezes the container and produces the ordered output: main
// results by combined score descending, ties by position-sum ascending, then
// by earliest contributing engine in dispatch order, then by dedup key. The
// ordering depends only on the merged record set, never on arrival order.
func (c *Container) Finalize(query core.Query) *Frozen {
	c.finalized = true

	entries := make([]*mergedEntry, 0, len(c.entries))
	for _, key := range c.keyOrder {
		if entry, ok := c.entries[key]; ok && entry.key == key {
			entries = append(entries, entry)
		}
	}

	scores := make(map[*mergedEntry]float64, len(entries))
	for _, entry := range entries {
		scores[entry] = c.combine(entry.scores)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if scores[a] != scores[b] {
			return scores[a] > scores[b]
		}
		if a.positionSum != b.positionSum {
			return a.positionSum < b.positionSum
		}
		if a.dispatchOrder != b.dispatchOrder {
			return a.dispatchOrder < b.dispatchOrder
		}
		return a.key < b.key
	})

	main := make([]MergedRecord, 0, len(entries))
	for _, entry := range entries {
		engines := make([]string, len(entry.engines))
		copy(engines, entry.engines)
		sort.Strings(engines)
		main = append(main, MergedRecord{
			ResultRecord: entry.record,
			Engines:      engines,
			Score:        scores[entry],
		})
	}

	infoboxes := make([]MergedInfobox, 0, len(c.infoboxes))
	for _, ib := range c.infoboxes {
		infoboxes = append(infoboxes, *ib)
	}

	errors := make([]EngineError, len(c.errors))
	copy(errors, c.errors)
	sort.Slice(errors, func(i, j int) bool { return errors[i].Engine < errors[j].Engine })

	timings := make([]EngineTiming, len(c.timings))
	copy(timings, c.timings)
	sort.Slice(timings, func(i, j int) bool { return timings[i].Engine < timings[j].Engine })

	return &Frozen{
		Query:        query,
		Main:         main,
		Answers:      append([]core.ResultRecord(nil), c.answers...),
		Suggestions:  append([]string(nil), c.suggestions...),
		Corrections:  append([]string(nil), c.corrections...),
		Infoboxes:    infoboxes,
		EngineErrors: errors,
		Timings:      timings,
	}
}

// ResultCount returns how many deduplicated main results have been merged
// so far. Used by the dispatcher for progress events.
func (c *Container) ResultCount() int {
	return len(c.entries)
}

func appendMissing(list []string, value string) []string {
	for _, v := range list {
		if v == value {
			return list
		}
	}
	return append(list, value)
}

func containsAttribute(list []core.InfoboxAttribute, attr core.InfoboxAttribute) bool {
	for _, a := range list {
		if a.Label == attr.Label && a.Value == attr.Value {
			return true
		}
	}
	return false
}

func containsURL(list []core.InfoboxURL, link core.InfoboxURL) bool {
	for _, l := range list {
		if l.URL == link.URL {
			return true
		}
	}
	return false
}

// TitleFold is a helper for tests and plugins comparing near-duplicate
// titles the way the merger does.
func TitleFold(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

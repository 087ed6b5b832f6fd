package core

import (
	"fmt"
	"strings"
	"time"
)

// Area tags which part of the result page a record belongs to.
type Area string

const (
	AreaMain       Area = "main"
	AreaAnswer     Area = "answer"
	AreaInfobox    Area = "infobox"
	AreaSuggestion Area = "suggestion"
	AreaCorrection Area = "correction"
)

// RawResult is one engine-specific result as returned by an adapter's Fetch.
// Its shape is only interpreted by the normalizer; adapters put whatever their
// upstream returns into it using the conventional keys ("url", "title",
// "content", ...).
type RawResult map[string]any

// String returns the string under key, or "" when absent or not a string.
func (r RawResult) String(key string) string {
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// Float returns the numeric value under key, accepting the numeric types JSON
// decoding and adapters commonly produce.
func (r RawResult) Float(key string) float64 {
	switch v := r[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Strings returns the string slice under key, tolerating []any payloads.
func (r RawResult) Strings(key string) []string {
	switch v := r[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// InfoboxAttribute is one label/value row inside an infobox.
type InfoboxAttribute struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// InfoboxURL is a labelled link inside an infobox.
type InfoboxURL struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Infobox is the rich payload of an AreaInfobox record.
type Infobox struct {
	Title         string             `json:"title"`
	Content       string             `json:"content,omitempty"`
	ImageURL      string             `json:"img_src,omitempty"`
	Attributes    []InfoboxAttribute `json:"attributes,omitempty"`
	URLs          []InfoboxURL       `json:"urls,omitempty"`
	RelatedTopics []string           `json:"related_topics,omitempty"`
}

// ResultRecord is the canonical unit of output produced by the normalizer.
// Once created it is immutable; the merger records merge metadata (engine
// attribution, combined score) in the result container, never by rewriting
// the per-engine fields here.
type ResultRecord struct {
	// Engine is the instance name of the engine that produced the record.
	Engine string `json:"engine"`

	Area Area `json:"-"`

	// URL, Title and Content are set for AreaMain records.
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content,omitempty"`

	// Thumbnail is optional richer metadata for main results.
	Thumbnail string `json:"thumbnail,omitempty"`

	// PublishedAt is the upstream publication date when the engine knows it.
	PublishedAt time.Time `json:"published_at,omitzero"`

	// Answer holds the replacement text for AreaAnswer records, and the
	// proposed query string for suggestions and corrections.
	Answer string `json:"answer,omitempty"`

	// Infobox is set for AreaInfobox records.
	Infobox *Infobox `json:"infobox,omitempty"`

	// Score is the per-engine relevance score before weighting.
	Score float64 `json:"score"`

	// Position is the 1-based rank the engine returned this record at.
	Position int `json:"position"`
}

// Validate checks the minimal shape requirements for the record's area.
func (r ResultRecord) Validate() error {
	if r.Engine == "" {
		return fmt.Errorf("result record without engine attribution")
	}
	switch r.Area {
	case AreaMain:
		if r.URL == "" {
			return fmt.Errorf("main result from %s without url", r.Engine)
		}
	case AreaAnswer, AreaSuggestion, AreaCorrection:
		if strings.TrimSpace(r.Answer) == "" {
			return fmt.Errorf("%s result from %s without content", r.Area, r.Engine)
		}
	case AreaInfobox:
		if r.Infobox == nil || r.Infobox.Title == "" {
			return fmt.Errorf("infobox result from %s without title", r.Engine)
		}
	default:
		return fmt.Errorf("unknown result area %q", r.Area)
	}
	return nil
}

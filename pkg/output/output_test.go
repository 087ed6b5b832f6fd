package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/results"
)

func sampleFrozen() *results.Frozen {
	return &results.Frozen{
		Query: core.NewQuery("golang"),
		Main: []results.MergedRecord{
			{
				ResultRecord: core.ResultRecord{
					URL:         "https://example.com/one",
					Title:       "First, with \"quotes\"",
					Content:     "Summary one",
					PublishedAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
					Position:    1,
				},
				Engines: []string{"alpha", "beta"},
				Score:   1.5,
			},
			{
				ResultRecord: core.ResultRecord{
					URL:      "https://example.org/two",
					Title:    "Second",
					Position: 2,
				},
				Engines: []string{"alpha"},
				Score:   0.5,
			},
		},
		Answers:     []core.ResultRecord{{Engine: "random", Answer: "42"}},
		Suggestions: []string{"golang tutorial"},
		EngineErrors: []results.EngineError{
			{Engine: "gamma", Kind: "timeout", Message: "context deadline exceeded"},
		},
	}
}

func TestParseFormat(t *testing.T) {
	cases := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"", FormatJSON, false},
		{"json", FormatJSON, false},
		{"CSV", FormatCSV, false},
		{"rss", FormatRSS, false},
		{"html", FormatJSON, true},
	}
	for _, tc := range cases {
		got, err := ParseFormat(tc.in)
		if tc.wantErr != (err != nil) {
			t.Errorf("ParseFormat(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestWriteJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatJSON, sampleFrozen()); err != nil {
		t.Fatalf("writing json: %v", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(buf.Bytes(), &doc); err != nil {
		t.Fatalf("output is not valid json: %v", err)
	}
	if doc["query"] != "golang" {
		t.Errorf("unexpected query field: %v", doc["query"])
	}
	if doc["number_of_results"] != float64(2) {
		t.Errorf("unexpected number_of_results: %v", doc["number_of_results"])
	}
	main, ok := doc["main"].([]any)
	if !ok || len(main) != 2 {
		t.Fatalf("unexpected main results: %v", doc["main"])
	}
	first := main[0].(map[string]any)
	if first["url"] != "https://example.com/one" || first["score"] != 1.5 {
		t.Errorf("unexpected first result: %v", first)
	}
	if engines, ok := first["engines"].([]any); !ok || len(engines) != 2 {
		t.Errorf("expected engine attribution in json, got %v", first["engines"])
	}
	if errs, ok := doc["engine_errors"].([]any); !ok || len(errs) != 1 {
		t.Errorf("expected engine errors in json, got %v", doc["engine_errors"])
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatCSV, sampleFrozen()); err != nil {
		t.Fatalf("writing csv: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header plus 2 rows, got %d lines", len(lines))
	}
	if lines[0] != "url,title,content,engines,score,position" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	if !strings.Contains(lines[1], "alpha|beta") {
		t.Errorf("expected joined engine list, got %q", lines[1])
	}
	// Quotes inside the title must be CSV-escaped.
	if !strings.Contains(lines[1], `"First, with ""quotes"""`) {
		t.Errorf("expected quoted title, got %q", lines[1])
	}
}

func TestWriteRSS(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, FormatRSS, sampleFrozen()); err != nil {
		t.Fatalf("writing rss: %v", err)
	}

	out := buf.String()
	if !strings.HasPrefix(out, "<?xml") {
		t.Errorf("expected xml declaration, got %q", out[:20])
	}
	for _, want := range []string{
		`<rss version="2.0">`,
		"<link>https://example.com/one</link>",
		"<pubDate>Fri, 01 Mar 2024 12:00:00 +0000</pubDate>",
		"<guid>https://example.org/two</guid>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rss output missing %q", want)
		}
	}
}

func TestContentType(t *testing.T) {
	if got := FormatJSON.ContentType(); !strings.HasPrefix(got, "application/json") {
		t.Errorf("unexpected json content type %q", got)
	}
	if got := FormatRSS.ContentType(); !strings.HasPrefix(got, "application/rss+xml") {
		t.Errorf("unexpected rss content type %q", got)
	}
}

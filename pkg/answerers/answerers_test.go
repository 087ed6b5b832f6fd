package answerers

import (
	"context"
	"strings"
	"testing"

	"github.com/metisearch/metis/pkg/core"
)

func TestRandomAnswererUUID(t *testing.T) {
	a := NewRandomAnswerer()
	records, err := a.Answer(context.Background(), core.NewQuery("random uuid"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 answer, got %d", len(records))
	}
	if records[0].Area != core.AreaAnswer || records[0].Engine != "random" {
		t.Errorf("unexpected record shape: %+v", records[0])
	}
	if len(records[0].Answer) != 36 || strings.Count(records[0].Answer, "-") != 4 {
		t.Errorf("expected uuid-shaped answer, got %q", records[0].Answer)
	}
}

func TestRandomAnswererNotTriggered(t *testing.T) {
	a := NewRandomAnswerer()
	for _, terms := range []string{"golang random", "random", "random walk theory"} {
		records, err := a.Answer(context.Background(), core.NewQuery(terms))
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", terms, err)
		}
		if len(records) != 0 {
			t.Errorf("expected no answer for %q, got %v", terms, records)
		}
	}
}

func TestRandomAnswererColor(t *testing.T) {
	a := NewRandomAnswerer()
	records, err := a.Answer(context.Background(), core.NewQuery("random color"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 1 || len(records[0].Answer) != 7 || records[0].Answer[0] != '#' {
		t.Errorf("expected hex color answer, got %+v", records)
	}
}

func TestStatisticsAnswerer(t *testing.T) {
	a := NewStatisticsAnswerer()
	cases := []struct {
		terms string
		want  string
	}{
		{"avg 1 2 3", "avg(1, 2, 3) = 2"},
		{"min 5 2 9", "min(5, 2, 9) = 2"},
		{"max 5 2 9", "max(5, 2, 9) = 9"},
		{"sum 1 2 3 4", "sum(1, 2, 3, 4) = 10"},
		{"prod 2 3 4", "prod(2, 3, 4) = 24"},
	}
	for _, tc := range cases {
		records, err := a.Answer(context.Background(), core.NewQuery(tc.terms))
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", tc.terms, err)
		}
		if len(records) != 1 {
			t.Fatalf("%q: expected 1 answer, got %d", tc.terms, len(records))
		}
		if records[0].Answer != tc.want {
			t.Errorf("%q: got %q, want %q", tc.terms, records[0].Answer, tc.want)
		}
	}
}

func TestStatisticsAnswererNonNumeric(t *testing.T) {
	a := NewStatisticsAnswerer()
	records, err := a.Answer(context.Background(), core.NewQuery("max planck institute"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected no answer for non-numeric terms, got %v", records)
	}
}

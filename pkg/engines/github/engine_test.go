package github

import (
	"testing"
	"time"

	"github.com/metisearch/metis/pkg/core"
)

func TestConfigValidate(t *testing.T) {
	for _, sort := range []string{"", "stars", "forks", "updated"} {
		if err := (&Config{Sort: sort}).Validate(); err != nil {
			t.Errorf("sort %q rejected: %v", sort, err)
		}
	}
	if err := (&Config{Sort: "score"}).Validate(); err == nil {
		t.Error("expected invalid sort rejected")
	}
}

func TestNewEngineDefaults(t *testing.T) {
	engine, err := NewEngine("gh", nil)
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	if engine.Type() != "github" || engine.Name() != "gh" {
		t.Errorf("unexpected identity: %s/%s", engine.Type(), engine.Name())
	}
	if engine.Weight() != 1.0 {
		t.Errorf("expected neutral weight, got %v", engine.Weight())
	}
	if got := engine.Categories(); len(got) != 1 || got[0] != "it" {
		t.Errorf("expected it category, got %v", got)
	}
	caps := engine.Capabilities()
	if !caps.Paging || caps.MaxPage != 100 {
		t.Errorf("unexpected capabilities: %+v", caps)
	}
}

func TestEngineOverrides(t *testing.T) {
	engine, err := NewEngine("gh", &Config{Weight: 0.5, Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("creating engine: %v", err)
	}
	if engine.Weight() != 0.5 {
		t.Errorf("expected weight override, got %v", engine.Weight())
	}
	if engine.Timeout() != 10*time.Second {
		t.Errorf("expected timeout override, got %v", engine.Timeout())
	}
}

func TestPrototypeRegistered(t *testing.T) {
	registry := core.GetGlobalRegistry()
	if err := registry.CreateEngine("gh", "github", &Config{}); err != nil {
		t.Fatalf("creating engine from prototype: %v", err)
	}
	if _, err := registry.GetEngine("gh"); err != nil {
		t.Fatal(err)
	}
}

func TestInvalidConfigType(t *testing.T) {
	if _, err := NewEngine("gh", 42); err == nil {
		t.Error("expected error for wrong config type")
	}
}

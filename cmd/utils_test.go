package cmd

import (
	"context"
	"testing"
	"time"

	"github.com/metisearch/metis/pkg/config"
	"github.com/metisearch/metis/pkg/core"
)

type fakeConfig struct {
	Greeting string  `toml:"greeting"`
	Weight   float64 `toml:"weight"`
}

type fakeEngine struct {
	name string
	cfg  *fakeConfig
}

func (e *fakeEngine) Type() string { return "fake" }
func (e *fakeEngine) Name() string { return e.name }
func (e *fakeEngine) Fetch(ctx context.Context, query core.Query) ([]core.RawResult, error) {
	return nil, nil
}
func (e *fakeEngine) Capabilities() core.Capabilities { return core.Capabilities{} }
func (e *fakeEngine) Categories() []string            { return []string{"general"} }
func (e *fakeEngine) Weight() float64                 { return 1.0 }
func (e *fakeEngine) Timeout() time.Duration          { return 0 }
func (e *fakeEngine) ConfigType() interface{}         { return &fakeConfig{} }
func (e *fakeEngine) Factory(instanceName string, cfg interface{}) (core.Engine, error) {
	fc, _ := cfg.(*fakeConfig)
	if fc == nil {
		fc = &fakeConfig{}
	}
	return &fakeEngine{name: instanceName, cfg: fc}, nil
}
func (e *fakeEngine) Close() error { return nil }

func TestCreateEnginesFromConfig(t *testing.T) {
	registry := core.NewRegistry()
	if err := registry.RegisterPrototype("fake", &fakeEngine{}); err != nil {
		t.Fatalf("registering prototype: %v", err)
	}

	cfg := &config.Config{
		Engines: map[string]config.EngineInfo{
			"fake_main": {
				Type:   "fake",
				Config: map[string]interface{}{"greeting": "hello"},
			},
			"fake_it": {
				Type:       "fake",
				Categories: []string{"it"},
			},
			"fake_off": {
				Type:     "fake",
				Disabled: true,
			},
		},
	}

	if err := createEnginesFromConfig(registry, cfg); err != nil {
		t.Fatalf("creating engines: %v", err)
	}

	engine, err := registry.GetEngine("fake_main")
	if err != nil {
		t.Fatalf("fake_main not created: %v", err)
	}
	fe := engine.(*fakeEngine)
	if fe.cfg.Greeting != "hello" {
		t.Errorf("config not applied: greeting = %q", fe.cfg.Greeting)
	}

	retagged, err := registry.GetEngine("fake_it")
	if err != nil {
		t.Fatalf("fake_it not created: %v", err)
	}
	cats := retagged.Categories()
	if len(cats) != 1 || cats[0] != "it" {
		t.Errorf("category override not applied: %v", cats)
	}

	if _, err := registry.GetEngine("fake_off"); err == nil {
		t.Error("disabled engine should not be created")
	}
}

func TestCreateEnginesFromConfigUnknownType(t *testing.T) {
	registry := core.NewRegistry()
	cfg := &config.Config{
		Engines: map[string]config.EngineInfo{
			"mystery": {Type: "mystery"},
		},
	}
	if err := createEnginesFromConfig(registry, cfg); err == nil {
		t.Error("expected error for unknown engine type")
	}
}

func TestConvertRawConfigToType(t *testing.T) {
	registry := core.NewRegistry()
	if err := registry.RegisterPrototype("fake", &fakeEngine{}); err != nil {
		t.Fatalf("registering prototype: %v", err)
	}

	raw := map[string]interface{}{"greeting": "hi", "weight": 0.5}
	converted, err := convertRawConfigToType(registry, "fake", raw)
	if err != nil {
		t.Fatalf("converting config: %v", err)
	}
	fc, ok := converted.(*fakeConfig)
	if !ok {
		t.Fatalf("unexpected config type %T", converted)
	}
	if fc.Greeting != "hi" || fc.Weight != 0.5 {
		t.Errorf("round trip lost fields: %+v", fc)
	}

	converted, err = convertRawConfigToType(registry, "fake", nil)
	if err != nil {
		t.Fatalf("converting nil config: %v", err)
	}
	if _, ok := converted.(*fakeConfig); !ok {
		t.Errorf("nil config should produce the default type, got %T", converted)
	}
}

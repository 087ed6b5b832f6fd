package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/metisearch/metis/pkg/answerers"
	"github.com/metisearch/metis/pkg/config"
	"github.com/metisearch/metis/pkg/core"
	"github.com/metisearch/metis/pkg/dispatch"
	"github.com/metisearch/metis/pkg/log"
	"github.com/metisearch/metis/pkg/plugins"
	"github.com/metisearch/metis/pkg/processor"
	"github.com/metisearch/metis/pkg/results"
	"github.com/metisearch/metis/pkg/storage"
)

// historyDBName is the SQLite file inside the storage directory.
const historyDBName = "history.db"

var logger = log.For("cmd")

// createEnginesFromConfig creates and configures engines from the config
func createEnginesFromConfig(registry *core.Registry, cfg *config.Config) error {
	for name, info := range cfg.Engines {
		if info.Disabled {
			continue
		}

		engineType, rawConfig, err := cfg.GetEngineConfig(name)
		if err != nil {
			return fmt.Errorf("getting config for engine %s: %w", name, err)
		}

		engineConfig, err := convertRawConfigToType(registry, engineType, rawConfig)
		if err != nil {
			return fmt.Errorf("converting config for engine %s: %w", name, err)
		}

		if err := registry.CreateEngine(name, engineType, engineConfig); err != nil {
			return fmt.Errorf("creating engine %s: %w", name, err)
		}

		// Apply the category retag from [engines.<name>] if present.
		if len(info.Categories) > 0 {
			engine, err := registry.GetEngine(name)
			if err != nil {
				return fmt.Errorf("engine %s not found after creation: %w", name, err)
			}
			if err := registry.ReplaceEngine(name, core.OverrideCategories(engine, info.Categories)); err != nil {
				return fmt.Errorf("retagging engine %s: %w", name, err)
			}
		}
	}

	return nil
}

// convertRawConfigToType converts a raw config subtree to the engine's
// expected type by round-tripping it through TOML.
func convertRawConfigToType(registry *core.Registry, engineType string, rawConfig interface{}) (interface{}, error) {
	configType, err := registry.PrototypeConfigType(engineType)
	if err != nil {
		return nil, err
	}

	if rawConfig == nil {
		return configType, nil
	}

	configData, err := toml.Marshal(rawConfig)
	if err != nil {
		return nil, fmt.Errorf("marshaling config data: %w", err)
	}

	if err := toml.Unmarshal(configData, configType); err != nil {
		return nil, fmt.Errorf("unmarshaling engine config: %w", err)
	}

	return configType, nil
}

// searchStack bundles everything a search needs: the populated registry, the
// circuit breaker, the dispatcher and (optionally) the history database.
type searchStack struct {
	cfg        *config.Config
	registry   *core.Registry
	breaker    *processor.Breaker
	dispatcher *dispatch.Dispatcher
	history    *storage.History
}

// buildSearchStack loads configuration and wires the full search pipeline.
// When withHistory is true the history database is opened, persisted engine
// suspensions are restored into the breaker, and every outcome is recorded.
func buildSearchStack(configPath string, withHistory bool) (*searchStack, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	registry := core.GetGlobalRegistry()
	if err := createEnginesFromConfig(registry, cfg); err != nil {
		return nil, fmt.Errorf("creating engines: %w", err)
	}

	breaker := processor.NewBreaker(
		cfg.Breaker.FailureThreshold,
		cfg.Breaker.SuspendTime.Duration,
		cfg.Breaker.MaxSuspendTime.Duration,
	)

	var history *storage.History
	if withHistory {
		history, err = storage.NewHistory(filepath.Join(cfg.StorageDir, historyDBName))
		if err != nil {
			return nil, fmt.Errorf("opening history database: %w", err)
		}
		suspensions, err := history.LoadSuspensions()
		if err != nil {
			return nil, fmt.Errorf("loading suspensions: %w", err)
		}
		breaker.Restore(suspensions)
	}

	timeouts := make(map[string]time.Duration)
	weights := make(map[string]float64)
	for name, engine := range registry.GetAllEngines() {
		weights[name] = engine.Weight()
		info, ok := cfg.Engines[name]
		if !ok {
			continue
		}
		if info.Weight > 0 {
			weights[name] = info.Weight
		}
		if info.Timeout != nil && info.Timeout.Duration > 0 {
			timeouts[name] = info.Timeout.Duration
		}
	}

	proc := processor.New(processor.Options{
		DefaultTimeout: cfg.RequestTimeout.Duration,
		RetryCount:     cfg.RetryCount,
		EgressProxies:  cfg.EgressProxies,
		Timeouts:       timeouts,
		Breaker:        breaker,
	})

	rule, err := results.ParseScoreRule(cfg.ScoreRule)
	if err != nil {
		return nil, fmt.Errorf("parsing score rule: %w", err)
	}

	pluginRegistry := plugins.NewRegistry()
	pluginRegistry.AddResultHook(&plugins.TrackerCleaner{ExtraParams: cfg.TrackingParams})

	opts := dispatch.Options{
		Timeout:        cfg.MaxRequestTimeout.Duration,
		MaxTimeout:     cfg.MaxRequestTimeout.Duration,
		Weights:        weights,
		Rule:           rule,
		TrackingParams: cfg.TrackingParams,
		Answerers:      answerers.All(),
		Plugins:        pluginRegistry,
	}
	if history != nil {
		h := history
		opts.OnOutcome = func(query core.Query, outcome core.EngineOutcome) {
			if err := h.RecordOutcome(query, outcome); err != nil {
				logger.Warnf("recording outcome for %s: %v", outcome.Engine, err)
			}
		}
	}

	return &searchStack{
		cfg:        cfg,
		registry:   registry,
		breaker:    breaker,
		dispatcher: dispatch.New(registry, proc, opts),
		history:    history,
	}, nil
}

// Close tears down the stack. Current breaker suspensions are persisted
// first so restarts keep misbehaving engines suspended.
func (s *searchStack) Close() {
	if s.history != nil {
		if err := s.history.SaveSuspensions(s.breaker.Suspensions()); err != nil {
			logger.Warnf("saving suspensions: %v", err)
		}
		if err := s.history.Close(); err != nil {
			logger.Warnf("closing history database: %v", err)
		}
	}
	if err := s.registry.Close(); err != nil {
		logger.Warnf("closing registry: %v", err)
	}
}

package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed config.toml.sample
var configTemplate string

// Duration wraps time.Duration so it can be written as "3s" in TOML.
type Duration struct {
	time.Duration
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// BreakerConfig tunes the per-engine circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is how many consecutive failures trip the breaker.
	FailureThreshold int `toml:"failure_threshold"`
	// SuspendTime is the initial suspension window after tripping.
	SuspendTime Duration `toml:"suspend_time"`
	// MaxSuspendTime caps the exponential growth of repeated suspensions.
	MaxSuspendTime Duration `toml:"max_suspend_time"`
}

// EngineInfo is the static configuration of one engine instance.
type EngineInfo struct {
	Type string `toml:"type"`

	// Weight scales the engine's scores during merging; 0 means 1.0.
	Weight float64 `toml:"weight,omitempty"`

	// Timeout overrides the global request timeout for this engine.
	Timeout *Duration `toml:"timeout,omitempty"`

	// Categories overrides the engine's default category tags.
	Categories []string `toml:"categories,omitempty"`

	Disabled bool `toml:"disabled,omitempty"`

	// Config is the engine-specific subtree, decoded against the
	// prototype's ConfigType.
	Config interface{} `toml:"config,omitempty"`
}

type Config struct {
	// RequestTimeout is the default per-engine timeout.
	RequestTimeout Duration `toml:"request_timeout"`

	// MaxRequestTimeout is the global deadline for one whole search.
	MaxRequestTimeout Duration `toml:"max_request_timeout"`

	// RetryCount bounds retries of transient network failures per engine.
	RetryCount int `toml:"retry_count"`

	// EgressProxies are proxy URLs the processor rotates through on retry.
	EgressProxies []string `toml:"egress_proxies,omitempty"`

	// ScoreRule selects the duplicate score combination: sum, max or avg.
	ScoreRule string `toml:"score_rule"`

	// TrackingParams extends the built-in tracking parameter denylist used
	// for URL deduplication and the tracker cleaner plugin.
	TrackingParams []string `toml:"tracking_params,omitempty"`

	// ListenAddr is the HTTP API listen address for serve.
	ListenAddr string `toml:"listen_addr"`

	// StorageDir holds the engine health and query history database.
	StorageDir string `toml:"storage_dir"`

	Breaker BreakerConfig `toml:"breaker"`

	Engines map[string]EngineInfo `toml:"engines"`
}

func GetDefaultConfig() (*Config, error) {
	storageDir, err := GetDefaultStorageDir()
	if err != nil {
		return nil, fmt.Errorf("getting default storage directory: %w", err)
	}
	return &Config{
		RequestTimeout:    Duration{3 * time.Second},
		MaxRequestTimeout: Duration{6 * time.Second},
		RetryCount:        1,
		ScoreRule:         "sum",
		ListenAddr:        ":8383",
		StorageDir:        storageDir,
		Breaker: BreakerConfig{
			FailureThreshold: 3,
			SuspendTime:      Duration{time.Minute},
			MaxSuspendTime:   Duration{time.Hour},
		},
		Engines: make(map[string]EngineInfo),
	}, nil
}

func LoadConfig(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return GetDefaultConfig()
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	defaults, err := GetDefaultConfig()
	if err != nil {
		return nil, err
	}
	if config.RequestTimeout.Duration == 0 {
		config.RequestTimeout = defaults.RequestTimeout
	}
	if config.MaxRequestTimeout.Duration == 0 {
		config.MaxRequestTimeout = defaults.MaxRequestTimeout
	}
	if config.MaxRequestTimeout.Duration < config.RequestTimeout.Duration {
		return nil, fmt.Errorf("max_request_timeout %v is below request_timeout %v",
			config.MaxRequestTimeout.Duration, config.RequestTimeout.Duration)
	}
	if config.ScoreRule == "" {
		config.ScoreRule = defaults.ScoreRule
	}
	switch config.ScoreRule {
	case "sum", "max", "avg":
	default:
		return nil, fmt.Errorf("invalid score_rule %q (want sum, max or avg)", config.ScoreRule)
	}
	if config.ListenAddr == "" {
		config.ListenAddr = defaults.ListenAddr
	}
	if config.StorageDir == "" {
		config.StorageDir = defaults.StorageDir
	}
	if config.Breaker.FailureThreshold == 0 {
		config.Breaker.FailureThreshold = defaults.Breaker.FailureThreshold
	}
	if config.Breaker.SuspendTime.Duration == 0 {
		config.Breaker.SuspendTime = defaults.Breaker.SuspendTime
	}
	if config.Breaker.MaxSuspendTime.Duration == 0 {
		config.Breaker.MaxSuspendTime = defaults.Breaker.MaxSuspendTime
	}
	if config.Engines == nil {
		config.Engines = make(map[string]EngineInfo)
	}

	return &config, nil
}

func (c *Config) SaveConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(configPath, data, 0644)
}

// SaveTemplateConfig writes the annotated sample configuration, used by the
// init command for first-time setup.
func (c *Config) SaveTemplateConfig(configPath string) error {
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return os.WriteFile(configPath, []byte(configTemplate), 0644)
}

// GetEngineConfig returns the type and raw config subtree for an engine.
func (c *Config) GetEngineConfig(name string) (string, interface{}, error) {
	info, exists := c.Engines[name]
	if !exists {
		return "", nil, fmt.Errorf("engine %s not found", name)
	}
	return info.Type, info.Config, nil
}

// GetEngineTimeout returns the effective per-engine timeout.
func (c *Config) GetEngineTimeout(name string) time.Duration {
	info, exists := c.Engines[name]
	if !exists || info.Timeout == nil || info.Timeout.Duration == 0 {
		return c.RequestTimeout.Duration
	}
	return info.Timeout.Duration
}

// GetEngineWeight returns the configured weight for an engine, 1.0 when unset.
func (c *Config) GetEngineWeight(name string) float64 {
	info, exists := c.Engines[name]
	if !exists || info.Weight == 0 {
		return 1.0
	}
	return info.Weight
}

func (c *Config) ListEngines() []string {
	names := make([]string, 0, len(c.Engines))
	for name := range c.Engines {
		names = append(names, name)
	}
	return names
}

// GetDefaultStorageDir returns the default directory for databases,
// following XDG conventions.
func GetDefaultStorageDir() (string, error) {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	metisDir := filepath.Join(dataDir, "metis")
	if err := os.MkdirAll(metisDir, 0755); err != nil {
		return "", fmt.Errorf("creating storage directory %s: %w", metisDir, err)
	}

	return metisDir, nil
}

// GetConfigDir returns the configuration directory, following XDG conventions.
func GetConfigDir() (string, error) {
	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting user home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	metisConfigDir := filepath.Join(configDir, "metis")
	if err := os.MkdirAll(metisConfigDir, 0755); err != nil {
		return "", fmt.Errorf("creating config directory %s: %w", metisConfigDir, err)
	}

	return metisConfigDir, nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := GetConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.toml"), nil
}

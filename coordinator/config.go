package coordinator

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailored-agentic-units/varstate/bridge"
	"github.com/tailored-agentic-units/varstate/checkpoint"
	"github.com/tailored-agentic-units/varstate/observability"
	"github.com/tailored-agentic-units/varstate/variables"
)

// Config holds initialization parameters for a Context. Durations are
// expressed in milliseconds so config files stay plain JSON numbers.
type Config struct {
	MaxRetries     int    `json:"max_retries,omitempty"`
	BaseDelayMS    int    `json:"base_delay_ms,omitempty"`
	MaxDelayMS     int    `json:"max_delay_ms,omitempty"`
	SlowSingleMS   int    `json:"slow_single_ms,omitempty"`
	SlowBatchMS    int    `json:"slow_batch_ms,omitempty"`
	Observer       string `json:"observer,omitempty"`
	CheckpointPath string `json:"checkpoint_path,omitempty"`
}

// DefaultConfig returns a Config matching the package defaults.
func DefaultConfig() Config {
	retry := bridge.DefaultRetryPolicy()
	return Config{
		MaxRetries:   retry.MaxRetries,
		BaseDelayMS:  int(retry.BaseDelay / time.Millisecond),
		MaxDelayMS:   int(retry.MaxDelay / time.Millisecond),
		SlowSingleMS: int(observability.DefaultSlowSingle / time.Millisecond),
		SlowBatchMS:  int(observability.DefaultSlowBatch / time.Millisecond),
		Observer:     "noop",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.MaxRetries > 0 {
		c.MaxRetries = source.MaxRetries
	}
	if source.BaseDelayMS > 0 {
		c.BaseDelayMS = source.BaseDelayMS
	}
	if source.MaxDelayMS > 0 {
		c.MaxDelayMS = source.MaxDelayMS
	}
	if source.SlowSingleMS > 0 {
		c.SlowSingleMS = source.SlowSingleMS
	}
	if source.SlowBatchMS > 0 {
		c.SlowBatchMS = source.SlowBatchMS
	}
	if source.Observer != "" {
		c.Observer = source.Observer
	}
	if source.CheckpointPath != "" {
		c.CheckpointPath = source.CheckpointPath
	}
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}

// NewFromConfig builds a Context from configuration: observer by registry
// name, retry policy and slow thresholds from the millisecond fields, and a
// bolt checkpoint store when a path is configured. Options applied after
// config-driven initialization can override any piece.
func NewFromConfig(cfg *Config, registry *variables.Registry, opts ...Option) (*Context, error) {
	obs, err := observability.GetObserver(cfg.Observer)
	if err != nil {
		return nil, err
	}

	configOpts := []Option{
		WithObserver(obs),
		WithRetryPolicy(bridge.RetryPolicy{
			MaxRetries: cfg.MaxRetries,
			BaseDelay:  time.Duration(cfg.BaseDelayMS) * time.Millisecond,
			MaxDelay:   time.Duration(cfg.MaxDelayMS) * time.Millisecond,
		}),
		WithSlowThresholds(SlowThresholds{
			Single: time.Duration(cfg.SlowSingleMS) * time.Millisecond,
			Batch:  time.Duration(cfg.SlowBatchMS) * time.Millisecond,
		}),
	}

	var owned *checkpoint.BoltStore
	if cfg.CheckpointPath != "" {
		store, err := checkpoint.NewBoltStore(cfg.CheckpointPath)
		if err != nil {
			return nil, err
		}
		owned = store
		configOpts = append(configOpts, WithCheckpointStore(store))
	}

	c, err := New(registry, append(configOpts, opts...)...)
	if err != nil {
		if owned != nil {
			owned.Close()
		}
		return nil, err
	}
	if owned != nil {
		c.ownedStore = owned
	}
	return c, nil
}

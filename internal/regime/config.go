package regime

import (
	"fmt"
	"math"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds the classifier's tunable weights. Loaded once at startup and
// treated as immutable afterwards.
type Config struct {
	MinBars int `yaml:"min_bars"`

	// Per-regime position size weights used for the weighted multiplier.
	PositionWeights map[string]float64 `yaml:"position_weights"`

	// Per-regime score adjustments applied after the scorer's base rules.
	ScoreAdjustments map[string]float64 `yaml:"score_adjustments"`
}

// DefaultConfig returns the production weight tables.
func DefaultConfig() Config {
	return Config{
		MinBars: 50,
		PositionWeights: map[string]float64{
			"TRENDING": 1.0,
			"RANGING":  0.6,
			"VOLATILE": 0.5,
			"DEAD":     0.0,
		},
		ScoreAdjustments: map[string]float64{
			"TRENDING": 10,
			"RANGING":  -20,
			"VOLATILE": 0,
			"DEAD":     -30,
		},
	}
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MinBars == 0 {
		c.MinBars = def.MinBars
	}
	if c.PositionWeights == nil {
		c.PositionWeights = def.PositionWeights
	}
	if c.ScoreAdjustments == nil {
		c.ScoreAdjustments = def.ScoreAdjustments
	}
}

// LoadConfig reads and validates a regime weights file.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read regime config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse regime config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("regime config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks the weight tables cover all four regimes with sane values.
func (c Config) Validate() error {
	for _, name := range []string{"TRENDING", "RANGING", "VOLATILE", "DEAD"} {
		w, ok := c.PositionWeights[name]
		if !ok {
			return fmt.Errorf("missing position weight for %s", name)
		}
		if w < 0 || w > 1 {
			return fmt.Errorf("position weight for %s out of range [0,1]: %f", name, w)
		}
		if _, ok := c.ScoreAdjustments[name]; !ok {
			return fmt.Errorf("missing score adjustment for %s", name)
		}
		if math.IsNaN(c.ScoreAdjustments[name]) {
			return fmt.Errorf("score adjustment for %s is NaN", name)
		}
	}
	if c.MinBars < 20 {
		return fmt.Errorf("min_bars %d too small, need at least 20", c.MinBars)
	}
	return nil
}

package risk

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/tradeedge/signalcore/internal/domain"
)

// DrawdownBracket maps a drawdown ceiling (percent) to a risk multiplier.
// Brackets are evaluated in ascending ceiling order; the first match wins.
type DrawdownBracket struct {
	MaxDrawdownPct float64 `yaml:"max_drawdown_pct"`
	Multiplier     float64 `yaml:"multiplier"`
}

// Config holds every governor threshold. All R-denominated limits are
// positive magnitudes; the governor applies the sign.
type Config struct {
	MinRiskReward float64 `yaml:"min_risk_reward"`
	BaseRiskPct   float64 `yaml:"base_risk_pct"`

	// Per-regime stop-distance ceilings and overnight-gap tolerances (percent).
	StopCeilingPct map[string]float64 `yaml:"stop_ceiling_pct"`
	GapTolerance   map[string]float64 `yaml:"gap_tolerance_pct"`

	DailyLossLimitR      float64            `yaml:"daily_loss_limit_r"`
	RegimeDailyLimits    map[string]float64 `yaml:"regime_daily_limits_r"`
	WeeklyLossLimitR     float64            `yaml:"weekly_loss_limit_r"`
	ConsecutiveLossLimit int                `yaml:"consecutive_loss_limit"`

	CorrelationThreshold    float64 `yaml:"correlation_threshold"`
	MaxSectorFraction       float64 `yaml:"max_sector_fraction"`
	MaxTop3ConcentrationPct float64 `yaml:"max_top3_concentration_pct"`

	DrawdownBrackets []DrawdownBracket `yaml:"drawdown_brackets"`
	FloorMultiplier  float64           `yaml:"floor_multiplier"`
}

// DefaultConfig returns production thresholds.
func DefaultConfig() Config {
	return Config{
		MinRiskReward: 2.0,
		BaseRiskPct:   1.0,
		StopCeilingPct: map[string]float64{
			"TRENDING": 8.0,
			"RANGING":  5.0,
			"VOLATILE": 4.0,
			"DEAD":     3.0,
		},
		GapTolerance: map[string]float64{
			"TRENDING": 10.0,
			"RANGING":  8.0,
			"VOLATILE": 12.0,
			"DEAD":     6.0,
		},
		DailyLossLimitR: 2.0,
		RegimeDailyLimits: map[string]float64{
			"TRENDING": 3.0,
			"RANGING":  1.5,
			"VOLATILE": 1.0,
			"DEAD":     0.0,
		},
		WeeklyLossLimitR:     6.0,
		ConsecutiveLossLimit: 3,

		CorrelationThreshold:    0.8,
		MaxSectorFraction:       0.30,
		MaxTop3ConcentrationPct: 60.0,

		DrawdownBrackets: []DrawdownBracket{
			{MaxDrawdownPct: 5.0, Multiplier: 1.0},
			{MaxDrawdownPct: 10.0, Multiplier: 0.7},
			{MaxDrawdownPct: 15.0, Multiplier: 0.4},
		},
		FloorMultiplier: 0.2,
	}
}

// LoadConfig reads thresholds from a YAML file, filling gaps from defaults.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read risk config: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse risk config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid risk config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.MinRiskReward == 0 {
		c.MinRiskReward = def.MinRiskReward
	}
	if c.BaseRiskPct == 0 {
		c.BaseRiskPct = def.BaseRiskPct
	}
	if len(c.StopCeilingPct) == 0 {
		c.StopCeilingPct = def.StopCeilingPct
	}
	if len(c.GapTolerance) == 0 {
		c.GapTolerance = def.GapTolerance
	}
	if c.DailyLossLimitR == 0 {
		c.DailyLossLimitR = def.DailyLossLimitR
	}
	if c.WeeklyLossLimitR == 0 {
		c.WeeklyLossLimitR = def.WeeklyLossLimitR
	}
	if c.ConsecutiveLossLimit == 0 {
		c.ConsecutiveLossLimit = def.ConsecutiveLossLimit
	}
	if c.CorrelationThreshold == 0 {
		c.CorrelationThreshold = def.CorrelationThreshold
	}
	if c.MaxSectorFraction == 0 {
		c.MaxSectorFraction = def.MaxSectorFraction
	}
	if c.MaxTop3ConcentrationPct == 0 {
		c.MaxTop3ConcentrationPct = def.MaxTop3ConcentrationPct
	}
	if len(c.DrawdownBrackets) == 0 {
		c.DrawdownBrackets = def.DrawdownBrackets
	}
	if c.FloorMultiplier == 0 {
		c.FloorMultiplier = def.FloorMultiplier
	}
	sort.Slice(c.DrawdownBrackets, func(i, j int) bool {
		return c.DrawdownBrackets[i].MaxDrawdownPct < c.DrawdownBrackets[j].MaxDrawdownPct
	})
}

// Validate rejects thresholds that would make the governor nonsensical.
func (c Config) Validate() error {
	if c.MinRiskReward < 1.0 {
		return fmt.Errorf("min_risk_reward %.2f must be at least 1.0", c.MinRiskReward)
	}
	if c.BaseRiskPct <= 0 || c.BaseRiskPct > 5 {
		return fmt.Errorf("base_risk_pct %.2f out of range (0, 5]", c.BaseRiskPct)
	}
	if c.CorrelationThreshold <= 0 || c.CorrelationThreshold > 1 {
		return fmt.Errorf("correlation_threshold %.2f out of range (0, 1]", c.CorrelationThreshold)
	}
	if c.MaxSectorFraction <= 0 || c.MaxSectorFraction > 1 {
		return fmt.Errorf("max_sector_fraction %.2f out of range (0, 1]", c.MaxSectorFraction)
	}
	if c.MaxTop3ConcentrationPct <= 0 || c.MaxTop3ConcentrationPct > 100 {
		return fmt.Errorf("max_top3_concentration_pct %.1f out of range (0, 100]", c.MaxTop3ConcentrationPct)
	}
	for _, b := range c.DrawdownBrackets {
		if b.Multiplier < 0 || b.Multiplier > 1 {
			return fmt.Errorf("drawdown bracket multiplier %.2f out of range [0, 1]", b.Multiplier)
		}
	}
	return nil
}

func (c Config) stopCeiling(r domain.Regime) float64 {
	if v, ok := c.StopCeilingPct[r.String()]; ok {
		return v
	}
	return c.StopCeilingPct["RANGING"]
}

func (c Config) gapTolerance(r domain.Regime) float64 {
	if v, ok := c.GapTolerance[r.String()]; ok {
		return v
	}
	return c.GapTolerance["RANGING"]
}

// dailyLimit prefers the regime-specific limit when one is configured.
// A DEAD regime limit of zero means no new losses are tolerated at all.
func (c Config) dailyLimit(r domain.Regime) float64 {
	if c.RegimeDailyLimits != nil {
		if v, ok := c.RegimeDailyLimits[r.String()]; ok {
			return v
		}
	}
	return c.DailyLossLimitR
}

func (c Config) drawdownMultiplier(dd float64) float64 {
	for _, b := range c.DrawdownBrackets {
		if dd < b.MaxDrawdownPct {
			return b.Multiplier
		}
	}
	return c.FloorMultiplier
}

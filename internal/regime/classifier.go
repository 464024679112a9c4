// Package regime classifies a FeatureVector into a probability distribution
// over the four market regimes.
package regime

import (
	"fmt"
	"math"

	"github.com/tradeedge/signalcore/internal/domain"
)

// Estimate is a probabilistic regime classification for one instrument and
// one scan cycle. Created once, never mutated.
type Estimate struct {
	Probabilities [4]float64    `json:"probabilities"` // indexed by domain.Regime ordinal
	Dominant      domain.Regime `json:"dominant"`
	Confidence    float64       `json:"confidence"` // probability of the dominant regime

	// Derived, regime-weighted knobs consumed downstream.
	PositionMultiplier float64 `json:"position_multiplier"`
	ScoreAdjustment    int     `json:"score_adjustment"`

	Features domain.FeatureVector `json:"features"`
}

// Prob returns the probability assigned to r.
func (e Estimate) Prob(r domain.Regime) float64 {
	return e.Probabilities[int(r)]
}

// Classifier maps feature vectors to regime estimates. Stateless; safe for
// concurrent use.
type Classifier struct {
	cfg Config
}

// NewClassifier returns a classifier with the given configuration. Zero-value
// fields in cfg are filled from DefaultConfig.
func NewClassifier(cfg Config) *Classifier {
	cfg.applyDefaults()
	return &Classifier{cfg: cfg}
}

// Classify produces an Estimate for the given features. It fails with
// domain.ErrInsufficientHistory when the feature window is below the
// configured minimum; the caller must skip the instrument for this cycle.
func (c *Classifier) Classify(fv domain.FeatureVector) (Estimate, error) {
	if fv.BarCount < c.cfg.MinBars {
		return Estimate{}, fmt.Errorf("%w: %d bars < minimum %d",
			domain.ErrInsufficientHistory, fv.BarCount, c.cfg.MinBars)
	}

	scores := [4]float64{
		c.trendingScore(fv),
		c.rangingScore(fv),
		c.volatileScore(fv),
		c.deadScore(fv),
	}

	probs := normalize(scores)

	dominant := domain.Trending
	for _, r := range domain.Regimes {
		// Strict > keeps the tie-break on the lower ordinal.
		if probs[int(r)] > probs[int(dominant)] {
			dominant = r
		}
	}

	var mult, adj float64
	for _, r := range domain.Regimes {
		mult += probs[int(r)] * c.cfg.PositionWeights[r.String()]
		adj += probs[int(r)] * c.cfg.ScoreAdjustments[r.String()]
	}

	return Estimate{
		Probabilities:      probs,
		Dominant:           dominant,
		Confidence:         probs[int(dominant)],
		PositionMultiplier: math.Round(mult*100) / 100,
		ScoreAdjustment:    int(math.Round(adj)),
		Features:           fv,
	}, nil
}

// Membership functions. Each produces a non-negative raw score; the relative
// magnitudes are what matter after normalization.

func (c *Classifier) trendingScore(fv domain.FeatureVector) float64 {
	var s float64
	if fv.TrendStrength > 25 {
		s += (fv.TrendStrength - 25) * 2
	}
	if fv.Choppiness < 50 {
		s += (50 - fv.Choppiness) * 1.5
	}
	if fv.Persistence > 0.5 {
		s += (fv.Persistence - 0.5) * 100
	}
	if math.Abs(fv.EMASlope) > 0.02 {
		s += 20
	}
	return s
}

func (c *Classifier) rangingScore(fv domain.FeatureVector) float64 {
	var s float64
	if fv.TrendStrength < 25 {
		s += (25 - fv.TrendStrength) * 2
	}
	if fv.Choppiness > 50 {
		s += (fv.Choppiness - 50) * 1.5
	}
	if fv.Persistence > 0.4 && fv.Persistence < 0.6 {
		s += 30
	}
	if math.Abs(fv.EMASlope) < 0.01 {
		s += 15
	}
	return s
}

func (c *Classifier) volatileScore(fv domain.FeatureVector) float64 {
	var s float64
	if fv.VolPercentile > 70 {
		s += (fv.VolPercentile - 70) * 2
	}
	if fv.Choppiness > 60 {
		s += fv.Choppiness - 60
	}
	if fv.TrendStrength > 20 {
		s += 10
	}
	return s
}

func (c *Classifier) deadScore(fv domain.FeatureVector) float64 {
	var s float64
	if fv.VolPercentile < 20 {
		s += (20 - fv.VolPercentile) * 2.5
	}
	if fv.TrendStrength < 15 {
		s += (15 - fv.TrendStrength) * 3
	}
	if math.Abs(fv.EMASlope) < 0.005 && fv.VolumeRatio < 0.8 {
		s += 20
	}
	return s
}

// normalize converts non-negative scores to a distribution summing to 1.
// All-zero scores fall back to the uniform distribution.
func normalize(scores [4]float64) [4]float64 {
	var total float64
	for _, s := range scores {
		total += s
	}
	if total == 0 {
		return [4]float64{0.25, 0.25, 0.25, 0.25}
	}
	var probs [4]float64
	for i, s := range scores {
		probs[i] = s / total
	}
	return probs
}

// Package features turns an ordered OHLCV bar series into the per-cycle
// FeatureVector consumed by the regime classifier and the risk governor.
package features

import (
	"fmt"
	"math"

	"github.com/tradeedge/signalcore/internal/domain"
)

const (
	adxLength     = 14
	chopLength    = 14
	emaLength     = 20
	hurstMaxLag   = 20
	volLookback   = 252
	volumeWindow  = 20
	gapLookback   = 252
)

// MinBars is the smallest series Compute accepts. Shorter series cannot
// support the indicator windows and yield ErrInsufficientHistory.
const MinBars = 50

// Compute builds a FeatureVector from bars ordered oldest-first.
func Compute(bars []domain.Bar) (domain.FeatureVector, error) {
	if len(bars) < MinBars {
		return domain.FeatureVector{}, fmt.Errorf("%w: have %d bars, need %d",
			domain.ErrInsufficientHistory, len(bars), MinBars)
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}

	return domain.FeatureVector{
		TrendStrength: adx(bars, adxLength),
		Choppiness:    choppiness(bars, chopLength),
		Persistence:   hurst(closes, hurstMaxLag),
		VolPercentile: atrPercentile(bars, volLookback),
		EMASlope:      emaSlope(closes, emaLength),
		VolumeRatio:   volumeRatio(bars, volumeWindow),
		WorstGapPct:   worstOvernightGap(bars, gapLookback),
		BarCount:      len(bars),
	}, nil
}

func trueRange(cur, prev domain.Bar) float64 {
	tr := cur.High - cur.Low
	if d := math.Abs(cur.High - prev.Close); d > tr {
		tr = d
	}
	if d := math.Abs(cur.Low - prev.Close); d > tr {
		tr = d
	}
	return tr
}

// adx is Wilder's Average Directional Index over the full series.
func adx(bars []domain.Bar, length int) float64 {
	if len(bars) < 2*length {
		return 0
	}

	var smTR, smPlus, smMinus float64
	var dxs []float64
	for i := 1; i < len(bars); i++ {
		up := bars[i].High - bars[i-1].High
		down := bars[i-1].Low - bars[i].Low
		var plusDM, minusDM float64
		if up > down && up > 0 {
			plusDM = up
		}
		if down > up && down > 0 {
			minusDM = down
		}
		tr := trueRange(bars[i], bars[i-1])

		if i < length {
			smTR += tr
			smPlus += plusDM
			smMinus += minusDM
			continue
		}
		// Wilder smoothing
		smTR = smTR - smTR/float64(length) + tr
		smPlus = smPlus - smPlus/float64(length) + plusDM
		smMinus = smMinus - smMinus/float64(length) + minusDM

		if smTR == 0 {
			continue
		}
		plusDI := 100 * smPlus / smTR
		minusDI := 100 * smMinus / smTR
		if plusDI+minusDI == 0 {
			continue
		}
		dxs = append(dxs, 100*math.Abs(plusDI-minusDI)/(plusDI+minusDI))
	}
	if len(dxs) < length {
		return 0
	}

	// ADX = Wilder-smoothed DX
	var out float64
	for i, dx := range dxs {
		if i < length {
			out += dx / float64(length)
			continue
		}
		out = (out*float64(length-1) + dx) / float64(length)
	}
	return out
}

// choppiness is the Choppiness Index over the last `length` bars:
// >61.8 consolidation, <38.2 trending.
func choppiness(bars []domain.Bar, length int) float64 {
	if len(bars) < length+1 {
		return 50
	}
	window := bars[len(bars)-length:]

	var trSum float64
	hh, ll := window[0].High, window[0].Low
	for i, b := range window {
		if b.High > hh {
			hh = b.High
		}
		if b.Low < ll {
			ll = b.Low
		}
		if i > 0 {
			trSum += trueRange(b, window[i-1])
		}
	}
	if hh == ll || trSum == 0 {
		return 50
	}
	chop := 100 * math.Log10(trSum/(hh-ll)) / math.Log10(float64(length))
	return clamp(chop, 0, 100)
}

// hurst estimates the Hurst exponent via rescaled-range analysis.
// >0.5 persistent/trending, <0.5 mean-reverting. Clamped to [0.1, 0.9].
func hurst(closes []float64, maxLag int) float64 {
	if len(closes) < maxLag*2 {
		return 0.5
	}

	var logLags, logRS []float64
	for lag := 2; lag < maxLag; lag++ {
		var rets []float64
		for i := lag; i < len(closes); i++ {
			if closes[i-lag] <= 0 || closes[i] <= 0 {
				continue
			}
			rets = append(rets, math.Log(closes[i]/closes[i-lag]))
		}
		if len(rets) < 2 {
			continue
		}
		mean, std := meanStd(rets)
		if std == 0 {
			continue
		}
		var cum, cumMin, cumMax float64
		for _, r := range rets {
			cum += r - mean
			cumMin = math.Min(cumMin, cum)
			cumMax = math.Max(cumMax, cum)
		}
		rs := (cumMax - cumMin) / std
		if rs > 0 {
			logLags = append(logLags, math.Log(float64(lag)))
			logRS = append(logRS, math.Log(rs))
		}
	}
	if len(logRS) < 3 {
		return 0.5
	}
	return clamp(slope(logLags, logRS), 0.1, 0.9)
}

// atrPercentile ranks the current ATR against its own trailing history.
func atrPercentile(bars []domain.Bar, lookback int) float64 {
	atrs := atrSeries(bars, adxLength)
	if len(atrs) < 20 {
		return 50
	}
	if len(atrs) > lookback {
		atrs = atrs[len(atrs)-lookback:]
	}
	current := atrs[len(atrs)-1]
	below := 0
	for _, a := range atrs {
		if a < current {
			below++
		}
	}
	return float64(below) / float64(len(atrs)) * 100
}

func atrSeries(bars []domain.Bar, length int) []float64 {
	if len(bars) < length+1 {
		return nil
	}
	out := make([]float64, 0, len(bars)-length)
	var atr float64
	for i := 1; i < len(bars); i++ {
		tr := trueRange(bars[i], bars[i-1])
		if i <= length {
			atr += tr / float64(length)
			if i == length {
				out = append(out, atr)
			}
			continue
		}
		atr = (atr*float64(length-1) + tr) / float64(length)
		out = append(out, atr)
	}
	return out
}

// emaSlope is the relative change of EMA20 over the last 10 bars.
func emaSlope(closes []float64, length int) float64 {
	if len(closes) < length+10 {
		return 0
	}
	k := 2.0 / float64(length+1)
	ema := closes[0]
	emas := make([]float64, len(closes))
	emas[0] = ema
	for i := 1; i < len(closes); i++ {
		ema = closes[i]*k + ema*(1-k)
		emas[i] = ema
	}
	base := emas[len(emas)-10]
	if base == 0 {
		return 0
	}
	return (emas[len(emas)-1] - base) / base
}

func volumeRatio(bars []domain.Bar, window int) float64 {
	if len(bars) < window+1 {
		return 1
	}
	var avg float64
	for _, b := range bars[len(bars)-window-1 : len(bars)-1] {
		avg += b.Volume / float64(window)
	}
	if avg == 0 {
		return 1
	}
	return bars[len(bars)-1].Volume / avg
}

// worstOvernightGap is the largest open-vs-prior-close discontinuity, as an
// absolute percentage of the prior close, over the trailing lookback.
func worstOvernightGap(bars []domain.Bar, lookback int) float64 {
	start := 1
	if len(bars) > lookback {
		start = len(bars) - lookback
	}
	var worst float64
	for i := start; i < len(bars); i++ {
		prev := bars[i-1].Close
		if prev <= 0 {
			continue
		}
		gap := math.Abs(bars[i].Open-prev) / prev * 100
		if gap > worst {
			worst = gap
		}
	}
	return worst
}

func meanStd(xs []float64) (float64, float64) {
	var mean float64
	for _, x := range xs {
		mean += x / float64(len(xs))
	}
	var variance float64
	for _, x := range xs {
		variance += (x - mean) * (x - mean) / float64(len(xs))
	}
	return mean, math.Sqrt(variance)
}

// slope is the least-squares slope of y on x.
func slope(xs, ys []float64) float64 {
	mx, _ := meanStd(xs)
	my, _ := meanStd(ys)
	var num, den float64
	for i := range xs {
		num += (xs[i] - mx) * (ys[i] - my)
		den += (xs[i] - mx) * (xs[i] - mx)
	}
	if den == 0 {
		return 0
	}
	return num / den
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

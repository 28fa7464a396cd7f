// Package indicator computes the composite breakout score for one asset's
// trailing observation window. The computation is a pure function of the
// window: identical input always produces an identical SignalScore, and
// degenerate arithmetic (zero means, non-finite ratios) degrades the
// affected sub-score to 0 instead of propagating an error.
package indicator

import (
	"github.com/openquant-lab/breakwater/internal/types"
	"github.com/openquant-lab/breakwater/pkg/errors"
)

// Weights are the relative contributions of each sub-score to the total.
type Weights struct {
	Consolidation   float64 `yaml:"consolidation" validate:"gte=0"`
	VolumeStability float64 `yaml:"volume_stability" validate:"gte=0"`
	Breakout        float64 `yaml:"breakout" validate:"gte=0"`
	BreakoutVolume  float64 `yaml:"breakout_volume" validate:"gte=0"`
	RSITrend        float64 `yaml:"rsi_trend" validate:"gte=0"`
	MACross         float64 `yaml:"ma_cross" validate:"gte=0"`
	MarketCap       float64 `yaml:"market_cap" validate:"gte=0"`
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Consolidation + w.VolumeStability + w.Breakout +
		w.BreakoutVolume + w.RSITrend + w.MACross + w.MarketCap
}

// Config holds the lookback sizes, scale divisors, and weights of the
// composite score. The values are empirically chosen constants preserved as
// named configuration; DefaultConfig returns the canonical set.
type Config struct {
	// BaseLookback caps the consolidation period length.
	BaseLookback int `yaml:"base_lookback" validate:"gte=1"`
	// RecentWindow is the span of most recent observations excluded from
	// the consolidation period and used for breakout/RSI-trend scoring.
	RecentWindow int `yaml:"recent_window" validate:"gte=1"`
	// RSIPeriod is the RSI smoothing period.
	RSIPeriod int `yaml:"rsi_period" validate:"gte=1"`
	// ShortMAPeriod and LongMAPeriod are the simple moving average spans
	// of the cross score.
	ShortMAPeriod int `yaml:"short_ma_period" validate:"gte=1"`
	LongMAPeriod  int `yaml:"long_ma_period" validate:"gte=1"`
	// MinObservations is the minimum window length required to compute a
	// score at all. It must cover the recent window with room for a
	// non-empty consolidation period in front of it.
	MinObservations int `yaml:"min_observations" validate:"gte=1,gtfield=RecentWindow"`

	// ConsolidationRangeScale is the range ratio that maps to a zero
	// consolidation score; tighter ranges score higher.
	ConsolidationRangeScale float64 `yaml:"consolidation_range_scale" validate:"gt=0"`
	// BreakoutPriceScale is the fractional price change that maps to the
	// maximum breakout score.
	BreakoutPriceScale float64 `yaml:"breakout_price_scale" validate:"gt=0"`
	// BreakoutVolumeScale is the fractional volume change that maps to the
	// maximum breakout-volume score.
	BreakoutVolumeScale float64 `yaml:"breakout_volume_scale" validate:"gt=0"`
	// RSITrendScale is the RSI delta that maps to the maximum trend score.
	RSITrendScale float64 `yaml:"rsi_trend_scale" validate:"gt=0"`
	// MACrossScale is the relative MA spread that maps to the maximum
	// cross score.
	MACrossScale float64 `yaml:"ma_cross_scale" validate:"gt=0"`
	// MarketCapLogCeiling and MarketCapLogScale map log10(market cap) onto
	// the cap score; smaller capitalizations score higher.
	MarketCapLogCeiling float64 `yaml:"market_cap_log_ceiling" validate:"gt=0"`
	MarketCapLogScale   float64 `yaml:"market_cap_log_scale" validate:"gt=0"`

	Weights Weights `yaml:"weights"`
}

// DefaultConfig returns the canonical indicator configuration.
func DefaultConfig() Config {
	return Config{
		BaseLookback:            90,
		RecentWindow:            14,
		RSIPeriod:               14,
		ShortMAPeriod:           20,
		LongMAPeriod:            60,
		MinObservations:         30,
		ConsolidationRangeScale: 0.5,
		BreakoutPriceScale:      0.20,
		BreakoutVolumeScale:     1.0,
		RSITrendScale:           30,
		MACrossScale:            0.10,
		MarketCapLogCeiling:     11,
		MarketCapLogScale:       2,
		Weights: Weights{
			Consolidation:   0.20,
			VolumeStability: 0.10,
			Breakout:        0.20,
			BreakoutVolume:  0.15,
			RSITrend:        0.15,
			MACross:         0.10,
			MarketCap:       0.10,
		},
	}
}

// Engine computes composite scores from observation windows.
type Engine struct {
	config Config
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(config Config) *Engine {
	return &Engine{
		config: config,
	}
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Compute calculates the composite score for the given window. The window
// must be chronological and end at the evaluation date. Returns an
// InsufficientDataError when the window is too short: the floor is
// MinObservations, raised to RecentWindow+1 when needed so the
// consolidation period is never empty.
func (e *Engine) Compute(assetID string, window []types.Observation) (types.SignalScore, error) {
	cfg := e.config

	required := cfg.MinObservations
	if required <= cfg.RecentWindow {
		required = cfg.RecentWindow + 1
	}

	if len(window) < required {
		return types.SignalScore{}, errors.NewInsufficientDataErrorf(
			required, len(window), assetID,
			"insufficient data for asset %s: have %d observations, need %d",
			assetID, len(window), required)
	}

	latest := window[len(window)-1]

	// Consolidation period: the window minus the most recent observations,
	// capped to the last BaseLookback entries.
	cons := window[:len(window)-cfg.RecentWindow]
	if len(cons) > cfg.BaseLookback {
		cons = cons[len(cons)-cfg.BaseLookback:]
	}

	recent := window[len(window)-cfg.RecentWindow:]

	consPrices := prices(cons)
	consVolumes := volumes(cons)
	recentVolumes := volumes(recent)

	consScore, rangeRatio := consolidationScore(consPrices, cfg.ConsolidationRangeScale)
	volScore, volumeCV := volumeStabilityScore(consVolumes)
	brkScore, priceChange := breakoutScore(latest.Price, mean(consPrices), cfg.BreakoutPriceScale)
	brkVolScore, volumeChange := breakoutScore(mean(recentVolumes), mean(consVolumes), cfg.BreakoutVolumeScale)
	rsiScore, rsi := rsiTrendScore(prices(window), cfg.RSIPeriod, cfg.RecentWindow, cfg.RSITrendScale)
	maScore, shortMA, longMA := maCrossScore(prices(window), cfg.ShortMAPeriod, cfg.LongMAPeriod, cfg.MACrossScale)
	capScore := marketCapScore(latest.MarketCap, cfg.MarketCapLogCeiling, cfg.MarketCapLogScale)

	weights := cfg.Weights

	total := weights.Consolidation*consScore +
		weights.VolumeStability*volScore +
		weights.Breakout*brkScore +
		weights.BreakoutVolume*brkVolScore +
		weights.RSITrend*rsiScore +
		weights.MACross*maScore +
		weights.MarketCap*capScore

	if sum := weights.Sum(); sum > 0 {
		total /= sum
	}

	return types.SignalScore{
		AssetID:              assetID,
		Date:                 latest.Date,
		TotalScore:           total,
		ConsolidationScore:   consScore,
		VolumeStabilityScore: volScore,
		BreakoutScore:        brkScore,
		BreakoutVolumeScore:  brkVolScore,
		RSITrendScore:        rsiScore,
		MACrossScore:         maScore,
		MarketCapScore:       capScore,
		RangeRatio:           rangeRatio,
		VolumeCV:             volumeCV,
		PriceChange:          priceChange,
		VolumeChange:         volumeChange,
		RSI:                  rsi,
		ShortMA:              shortMA,
		LongMA:               longMA,
		LatestPrice:          latest.Price,
		LatestVolume:         latest.Volume,
		MarketCap:            latest.MarketCap,
	}, nil
}

func prices(observations []types.Observation) []float64 {
	out := make([]float64, len(observations))
	for i, obs := range observations {
		out[i] = obs.Price
	}

	return out
}

func volumes(observations []types.Observation) []float64 {
	out := make([]float64, len(observations))
	for i, obs := range observations {
		out[i] = obs.Volume
	}

	return out
}

package types

import "time"

// SignalScore is the composite indicator result for one asset at one date.
// Scores are recomputed every step and never persisted. Every sub-score and
// the total lie in [0, 10].
type SignalScore struct {
	AssetID string
	Date    time.Time

	// TotalScore is the weighted average of the sub-scores.
	TotalScore float64

	// Sub-scores, each clipped to an integer in [0, 10].
	ConsolidationScore   float64
	VolumeStabilityScore float64
	BreakoutScore        float64
	BreakoutVolumeScore  float64
	RSITrendScore        float64
	MACrossScore         float64
	MarketCapScore       float64

	// Raw metrics backing the sub-scores, kept for reporting.
	RangeRatio   float64
	VolumeCV     float64
	PriceChange  float64
	VolumeChange float64
	RSI          float64
	ShortMA      float64
	LongMA       float64
	LatestPrice  float64
	LatestVolume float64
	MarketCap    float64
}

package indicator

import "math"

// consolidationScore rewards tight trading ranges: the price range of the
// consolidation period normalized by its mean price, inverted onto [0, 10].
// Returns the score and the raw range ratio.
func consolidationScore(consPrices []float64, rangeScale float64) (float64, float64) {
	m := mean(consPrices)
	if !isFinite(m) || m <= 0 {
		return 0, math.NaN()
	}

	lo, hi := minMax(consPrices)

	ratio := (hi - lo) / m
	if !isFinite(ratio) {
		return 0, math.NaN()
	}

	return clipScore(10 * (1 - ratio/rangeScale)), ratio
}

// volumeStabilityScore is the inverse coefficient of variation of the
// consolidation-period volume: steadier volume scores higher. Zero mean
// volume or a non-finite ratio yields 0. Returns the score and the raw CV.
func volumeStabilityScore(consVolumes []float64) (float64, float64) {
	m := mean(consVolumes)
	if !isFinite(m) || m == 0 {
		return 0, math.NaN()
	}

	cv := stddev(consVolumes) / m
	if !isFinite(cv) {
		return 0, math.NaN()
	}

	return clipScore(10 * (1 - cv)), cv
}

// breakoutScore maps the fractional change of current against base onto
// [0, 10], with changeScale being the change that saturates the score.
// Used for both price breakout (latest vs consolidation mean price) and
// volume breakout (recent mean vs consolidation mean volume). Returns the
// score and the raw fractional change.
func breakoutScore(current, base, changeScale float64) (float64, float64) {
	if !isFinite(base) || base <= 0 {
		return 0, math.NaN()
	}

	change := (current - base) / base
	if !isFinite(change) {
		return 0, math.NaN()
	}

	return clipScore(change / changeScale * 10), change
}

// marketCapScore favors small and mid capitalization on an inverse log
// scale: caps at or above 10^ceiling score 0, each decade below adds
// logScale points.
func marketCapScore(marketCap, logCeiling, logScale float64) float64 {
	if !isFinite(marketCap) || marketCap <= 0 {
		return 0
	}

	return clipScore((logCeiling - math.Log10(marketCap)) * logScale)
}

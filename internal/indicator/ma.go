package indicator

import "math"

// maCrossScore is nonzero only when the latest price sits above both the
// short and long simple moving averages; its magnitude comes from the
// relative spread between them. Returns the score and both averages.
func maCrossScore(closes []float64, shortPeriod, longPeriod int, spreadScale float64) (float64, float64, float64) {
	shortMA := sma(closes, shortPeriod)
	longMA := sma(closes, longPeriod)

	if !isFinite(shortMA) || !isFinite(longMA) || longMA <= 0 {
		return 0, shortMA, longMA
	}

	latest := closes[len(closes)-1]
	if latest <= shortMA || latest <= longMA {
		return 0, shortMA, longMA
	}

	spread := (shortMA - longMA) / longMA

	return clipScore(spread / spreadScale * 10), shortMA, longMA
}

// sma is the simple moving average of the last period closes; NaN when the
// series is shorter than the period.
func sma(closes []float64, period int) float64 {
	if period <= 0 || len(closes) < period {
		return math.NaN()
	}

	sum := 0.0
	for _, v := range closes[len(closes)-period:] {
		sum += v
	}

	return sum / float64(period)
}

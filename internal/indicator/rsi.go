package indicator

import "math"

// rsiTrendScore measures upward RSI momentum: the delta between the current
// RSI and its minimum over the recent window, mapped onto [0, 10]. Returns
// the score and the current RSI value.
func rsiTrendScore(closes []float64, period, recentWindow int, trendScale float64) (float64, float64) {
	series := rsiSeries(closes, period)
	if len(series) == 0 {
		return 0, math.NaN()
	}

	recent := series
	if len(recent) > recentWindow {
		recent = recent[len(recent)-recentWindow:]
	}

	current := recent[len(recent)-1]
	if !isFinite(current) {
		return 0, math.NaN()
	}

	low := current

	for _, v := range recent {
		if isFinite(v) && v < low {
			low = v
		}
	}

	return clipScore((current - low) / trendScale * 10), current
}

// rsiSeries computes the Wilder-smoothed RSI at every index of closes where
// enough history exists. The result is aligned with closes; indices with
// fewer than period+1 observations hold NaN.
//
// RSI = 100 - 100/(1+RS) with RS = average gain / average loss; the first
// averages are simple means over the initial period, subsequent values use
// Wilder's smoothing.
func rsiSeries(closes []float64, period int) []float64 {
	out := make([]float64, len(closes))
	for i := range out {
		out[i] = math.NaN()
	}

	if len(closes) < period+1 {
		return out
	}

	gains := make([]float64, len(closes))
	losses := make([]float64, len(closes))

	for i := 1; i < len(closes); i++ {
		change := closes[i] - closes[i-1]
		if change > 0 {
			gains[i] = change
		} else {
			losses[i] = -change
		}
	}

	avgGain := 0.0
	avgLoss := 0.0

	// First averages are simple means over the initial period.
	for i := 1; i <= period; i++ {
		avgGain += gains[i]
		avgLoss += losses[i]
	}

	avgGain /= float64(period)
	avgLoss /= float64(period)

	out[period] = rsiValue(avgGain, avgLoss)

	// Subsequent averages use Wilder's smoothing method.
	for i := period + 1; i < len(closes); i++ {
		avgGain = (avgGain*float64(period-1) + gains[i]) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + losses[i]) / float64(period)
		out[i] = rsiValue(avgGain, avgLoss)
	}

	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}

	rs := avgGain / avgLoss

	return 100 - (100 / (1 + rs))
}

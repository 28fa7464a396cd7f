package indicator

import "math"

// clipScore maps a raw value onto an integer score in [0, 10]. Non-finite
// inputs map to 0.
func clipScore(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}

	clipped := math.Trunc(v)
	if clipped < 0 {
		return 0
	}

	if clipped > 10 {
		return 10
	}

	return clipped
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return math.NaN()
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}

	return sum / float64(len(values))
}

// stddev is the sample standard deviation (N-1 denominator).
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return math.NaN()
	}

	m := mean(values)

	sum := 0.0
	for _, v := range values {
		d := v - m
		sum += d * d
	}

	return math.Sqrt(sum / float64(len(values)-1))
}

func minMax(values []float64) (float64, float64) {
	if len(values) == 0 {
		return math.NaN(), math.NaN()
	}

	lo, hi := values[0], values[0]

	for _, v := range values[1:] {
		if v < lo {
			lo = v
		}

		if v > hi {
			hi = v
		}
	}

	return lo, hi
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

package indicators

// MovingAverage computes the simple arithmetic mean over each sliding window
// of size period. The result has len(prices)-period+1 points; nil is returned
// when the series is shorter than the period.
func MovingAverage(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period {
		return nil
	}

	out := make([]float64, 0, len(prices)-period+1)
	sum := 0.0
	for i, p := range prices {
		sum += p
		if i >= period {
			sum -= prices[i-period]
		}
		if i >= period-1 {
			out = append(out, sum/float64(period))
		}
	}
	return out
}

// SMA returns the simple moving average of the last period values, or 0 when
// the series is too short. Used by the live indicator engine for the most
// recent window only.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	sum := 0.0
	for i := len(values) - period; i < len(values); i++ {
		sum += values[i]
	}
	return sum / float64(period)
}

// EMA computes an exponential moving average series with smoothing
// k = 2/(period+1), seeded with the first value. Output length matches input.
func EMA(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) == 0 {
		return nil
	}

	k := 2.0 / float64(period+1)
	out := make([]float64, len(prices))
	out[0] = prices[0]
	for i := 1; i < len(prices); i++ {
		out[i] = out[i-1] + k*(prices[i]-out[i-1])
	}
	return out
}

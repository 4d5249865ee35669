package indicators

import "math"

// Band is one Bollinger Bands sample. Upper >= Middle >= Lower holds for every
// output as long as the multiplier is non-negative.
type Band struct {
	Upper  float64
	Middle float64
	Lower  float64
}

// BollingerBands computes mean +/- k population standard deviations over each
// sliding window of size period. The result has len(prices)-period+1 points;
// nil is returned when the series is shorter than the period.
func BollingerBands(prices []float64, period int, k float64) []Band {
	if period <= 0 || len(prices) < period {
		return nil
	}

	out := make([]Band, 0, len(prices)-period+1)
	for i := period - 1; i < len(prices); i++ {
		window := prices[i-period+1 : i+1]

		mean := 0.0
		for _, p := range window {
			mean += p
		}
		mean /= float64(period)

		variance := 0.0
		for _, p := range window {
			d := p - mean
			variance += d * d
		}
		sigma := math.Sqrt(variance / float64(period))

		out = append(out, Band{
			Upper:  mean + k*sigma,
			Middle: mean,
			Lower:  mean - k*sigma,
		})
	}
	return out
}

package indicators

// RSI computes Wilder's smoothed Relative Strength Index. The first period
// deltas seed the average gain/loss; later bars use the exponential smoothing
// avg = (avg*(period-1) + value) / period. Output value i corresponds to
// prices[i+period], so the result has len(prices)-period points; nil is
// returned when fewer than period+1 prices are available.
//
// When the average loss is zero the RSI is pinned at 100 instead of letting
// the division blow up.
func RSI(prices []float64, period int) []float64 {
	if period <= 0 || len(prices) < period+1 {
		return nil
	}

	avgGain := 0.0
	avgLoss := 0.0
	for i := 1; i <= period; i++ {
		change := prices[i] - prices[i-1]
		if change > 0 {
			avgGain += change
		} else {
			avgLoss -= change
		}
	}
	avgGain /= float64(period)
	avgLoss /= float64(period)

	out := make([]float64, 0, len(prices)-period)
	out = append(out, rsiValue(avgGain, avgLoss))

	for i := period + 1; i < len(prices); i++ {
		change := prices[i] - prices[i-1]
		gain, loss := 0.0, 0.0
		if change > 0 {
			gain = change
		} else {
			loss = -change
		}
		avgGain = (avgGain*float64(period-1) + gain) / float64(period)
		avgLoss = (avgLoss*float64(period-1) + loss) / float64(period)
		out = append(out, rsiValue(avgGain, avgLoss))
	}
	return out
}

// LatestRSI returns the most recent RSI value, or 0 when the series is too
// short.
func LatestRSI(prices []float64, period int) float64 {
	series := RSI(prices, period)
	if len(series) == 0 {
		return 0
	}
	return series[len(series)-1]
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - (100 / (1 + rs))
}

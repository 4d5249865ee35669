package indicators

// MACD computes the Moving Average Convergence Divergence: the difference of
// a fast and a slow EMA, the EMA of that difference (signal line), and the
// histogram between them. All three outputs are aligned with the input; the
// first slow-period bars are warm-up and should not be acted on.
func MACD(prices []float64, fast, slow, signalPeriod int) (macd, signal, histogram []float64) {
	if len(prices) == 0 || fast <= 0 || slow <= 0 || signalPeriod <= 0 {
		return nil, nil, nil
	}

	emaFast := EMA(prices, fast)
	emaSlow := EMA(prices, slow)

	macd = make([]float64, len(prices))
	for i := range prices {
		macd[i] = emaFast[i] - emaSlow[i]
	}

	signal = EMA(macd, signalPeriod)

	histogram = make([]float64, len(prices))
	for i := range prices {
		histogram[i] = macd[i] - signal[i]
	}
	return macd, signal, histogram
}

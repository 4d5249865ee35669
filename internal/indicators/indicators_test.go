package indicators

import (
	"math"
	"testing"
)

func TestMovingAverageLength(t *testing.T) {
	tests := []struct {
		name    string
		n       int
		period  int
		wantLen int
	}{
		{name: "exact window", n: 5, period: 5, wantLen: 1},
		{name: "sliding", n: 10, period: 3, wantLen: 8},
		{name: "too short", n: 4, period: 5, wantLen: 0},
		{name: "zero period", n: 4, period: 0, wantLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prices := make([]float64, tt.n)
			for i := range prices {
				prices[i] = float64(i + 1)
			}
			got := MovingAverage(prices, tt.period)
			if len(got) != tt.wantLen {
				t.Fatalf("len=%d, expected %d", len(got), tt.wantLen)
			}
		})
	}
}

func TestMovingAverageValues(t *testing.T) {
	got := MovingAverage([]float64{1, 2, 3, 4, 5}, 2)
	want := []float64{1.5, 2.5, 3.5, 4.5}
	if len(got) != len(want) {
		t.Fatalf("len=%d, expected %d", len(got), len(want))
	}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("got[%d]=%v, expected %v", i, got[i], want[i])
		}
	}
}

func TestRSIBounds(t *testing.T) {
	// pseudo-random but deterministic walk
	prices := make([]float64, 120)
	prices[0] = 100
	for i := 1; i < len(prices); i++ {
		delta := math.Sin(float64(i)*1.7) * 2.5
		prices[i] = prices[i-1] + delta
	}

	series := RSI(prices, 14)
	if len(series) != len(prices)-14 {
		t.Fatalf("series len=%d, expected %d", len(series), len(prices)-14)
	}
	for i, v := range series {
		if v < 0 || v > 100 {
			t.Fatalf("rsi[%d]=%v out of [0,100]", i, v)
		}
	}
}

func TestRSIAllGainsPinsAt100(t *testing.T) {
	prices := make([]float64, 15)
	for i := range prices {
		prices[i] = 100 + float64(i)*2
	}
	series := RSI(prices, 14)
	if len(series) != 1 {
		t.Fatalf("series len=%d, expected 1", len(series))
	}
	if series[0] != 100 {
		t.Fatalf("rsi=%v, expected exactly 100 on a strictly rising series", series[0])
	}
}

func TestRSIInsufficientData(t *testing.T) {
	if got := RSI([]float64{1, 2, 3}, 14); got != nil {
		t.Fatalf("expected nil for short series, got %v", got)
	}
}

func TestBollingerOrdering(t *testing.T) {
	prices := make([]float64, 60)
	prices[0] = 50
	for i := 1; i < len(prices); i++ {
		prices[i] = prices[i-1] + math.Cos(float64(i))*1.3
	}

	bands := BollingerBands(prices, 20, 2)
	if len(bands) != len(prices)-20+1 {
		t.Fatalf("len=%d, expected %d", len(bands), len(prices)-20+1)
	}
	for i, b := range bands {
		if b.Upper < b.Middle || b.Middle < b.Lower {
			t.Fatalf("band[%d] not ordered: %+v", i, b)
		}
	}
}

func TestBollingerConstantSeries(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 42
	}
	bands := BollingerBands(prices, 20, 2)
	for _, b := range bands {
		if b.Upper != 42 || b.Middle != 42 || b.Lower != 42 {
			t.Fatalf("constant series should collapse bands, got %+v", b)
		}
	}
}

func TestMACDAlignmentAndHistogram(t *testing.T) {
	prices := make([]float64, 80)
	for i := range prices {
		prices[i] = 100 + 10*math.Sin(float64(i)/6)
	}

	macd, signal, hist := MACD(prices, 12, 26, 9)
	if len(macd) != len(prices) || len(signal) != len(prices) || len(hist) != len(prices) {
		t.Fatalf("output lengths %d/%d/%d, expected %d", len(macd), len(signal), len(hist), len(prices))
	}
	for i := range prices {
		if math.Abs(hist[i]-(macd[i]-signal[i])) > 1e-12 {
			t.Fatalf("hist[%d]=%v, expected macd-signal=%v", i, hist[i], macd[i]-signal[i])
		}
	}
}

func TestEngineWarmup(t *testing.T) {
	e := NewEngine(3, 5, 14, 50)

	var vals map[string]float64
	for i := 0; i < 4; i++ {
		vals = e.Update("BTCUSDT", 100+float64(i))
	}
	if vals["ma_fast"] == 0 {
		t.Fatalf("fast MA should be available after 4 bars")
	}
	if vals["ma_slow"] != 0 {
		t.Fatalf("slow MA should still be warming up, got %v", vals["ma_slow"])
	}

	for i := 4; i < 20; i++ {
		vals = e.Update("BTCUSDT", 100+float64(i))
	}
	if vals["ma_slow"] == 0 || vals["rsi"] == 0 {
		t.Fatalf("expected all indicators after warmup, got %v", vals)
	}
}

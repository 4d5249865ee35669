package strategy

import (
	"fmt"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
)

// bollingerRule is a mean-reversion rule: short when the close breaks
// above the upper band, buy when it breaks below the lower band.
// Parameters: period (20), stdDev (2).
func bollingerRule(bars []market.Bar, p Params) ([]Point, error) {
	period := p.Int("period", 20)
	stdDev := p.Float("stdDev", 2)

	if period <= 1 {
		return nil, fmt.Errorf("bollinger-bands: period must be at least 2, got %d", period)
	}
	if stdDev <= 0 {
		return nil, fmt.Errorf("bollinger-bands: stdDev multiplier must be positive, got %.2f", stdDev)
	}

	closes := market.Closes(bars)
	bands := indicators.BollingerBands(closes, period, stdDev)

	warmup := fmt.Sprintf("insufficient data: bollinger period %d needs %d bars", period, period)
	points := make([]Point, len(bars))
	for i, bar := range bars {
		if i < period-1 {
			points[i] = nonePoint(bar, warmup)
			continue
		}
		b := bands[i-period+1]

		switch {
		case bar.Close > b.Upper:
			points[i] = Point{
				Timestamp:  bar.Timestamp,
				Action:     ActionShort,
				Price:      bar.Close,
				Confidence: bandConfidence(bar.Close-b.Upper, b.Upper-b.Middle),
				Reason:     fmt.Sprintf("Close %.2f above upper band %.2f", bar.Close, b.Upper),
			}
		case bar.Close < b.Lower:
			points[i] = Point{
				Timestamp:  bar.Timestamp,
				Action:     ActionBuy,
				Price:      bar.Close,
				Confidence: bandConfidence(b.Lower-bar.Close, b.Middle-b.Lower),
				Reason:     fmt.Sprintf("Close %.2f below lower band %.2f", bar.Close, b.Lower),
			}
		default:
			points[i] = nonePoint(bar, "")
		}
	}
	return points, nil
}

// bandConfidence scales with how far the close overshoots the band,
// relative to the band's half-width.
func bandConfidence(overshoot, halfWidth float64) float64 {
	if halfWidth <= 0 {
		// flat window, bands collapsed onto the mean
		return 1
	}
	return clamp01(0.5 + overshoot/halfWidth)
}

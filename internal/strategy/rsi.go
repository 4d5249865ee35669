package strategy

import (
	"fmt"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
)

// rsiOversoldRule emits buy when RSI drops below the oversold level and
// short when it rises above the overbought level.
// Parameters: period (14), oversold (30), overbought (70).
func rsiOversoldRule(bars []market.Bar, p Params) ([]Point, error) {
	period := p.Int("period", 14)
	oversold := p.Float("oversold", 30)
	overbought := p.Float("overbought", 70)

	if period <= 0 {
		return nil, fmt.Errorf("rsi-oversold: period must be positive, got %d", period)
	}
	if oversold >= overbought {
		return nil, fmt.Errorf("rsi-oversold: oversold %.2f must be below overbought %.2f", oversold, overbought)
	}

	closes := market.Closes(bars)
	series := indicators.RSI(closes, period)

	warmup := fmt.Sprintf("insufficient data: rsi period %d needs %d bars", period, period+1)
	points := make([]Point, len(bars))
	for i, bar := range bars {
		if i < period {
			points[i] = nonePoint(bar, warmup)
			continue
		}
		v := series[i-period]

		switch {
		case v < oversold:
			points[i] = Point{
				Timestamp:  bar.Timestamp,
				Action:     ActionBuy,
				Price:      bar.Close,
				Confidence: clamp01(0.5 + (oversold-v)/oversold),
				Reason:     fmt.Sprintf("RSI oversold: %.2f < %.2f", v, oversold),
			}
		case v > overbought:
			points[i] = Point{
				Timestamp:  bar.Timestamp,
				Action:     ActionShort,
				Price:      bar.Close,
				Confidence: clamp01(0.5 + (v-overbought)/(100-overbought)),
				Reason:     fmt.Sprintf("RSI overbought: %.2f > %.2f", v, overbought),
			}
		default:
			points[i] = nonePoint(bar, "")
		}
	}
	return points, nil
}

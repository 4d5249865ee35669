package strategy

import (
	"fmt"
	"math"

	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
)

// maCrossoverRule emits buy on the bar where the fast MA crosses above
// the slow MA (golden cross) and short on the reverse transition. The
// comparison is between bar i and bar i-1, so the first signal can only
// appear once both MAs exist for two consecutive bars.
// Parameters: fastPeriod (10), slowPeriod (30).
func maCrossoverRule(bars []market.Bar, p Params) ([]Point, error) {
	fastPeriod := p.Int("fastPeriod", 10)
	slowPeriod := p.Int("slowPeriod", 30)

	if fastPeriod <= 0 || slowPeriod <= 0 {
		return nil, fmt.Errorf("moving-average-crossover: periods must be positive, got fast=%d slow=%d", fastPeriod, slowPeriod)
	}
	if fastPeriod >= slowPeriod {
		return nil, fmt.Errorf("moving-average-crossover: fast period %d must be below slow period %d", fastPeriod, slowPeriod)
	}

	closes := market.Closes(bars)
	fast := indicators.MovingAverage(closes, fastPeriod)
	slow := indicators.MovingAverage(closes, slowPeriod)

	warmup := fmt.Sprintf("insufficient data: slow MA period %d needs %d bars", slowPeriod, slowPeriod+1)
	points := make([]Point, len(bars))
	for i, bar := range bars {
		// First crossable bar needs both MAs at i and i-1.
		if i < slowPeriod {
			points[i] = nonePoint(bar, warmup)
			continue
		}

		fastCur := fast[i-fastPeriod+1]
		fastPrev := fast[i-fastPeriod]
		slowCur := slow[i-slowPeriod+1]
		slowPrev := slow[i-slowPeriod]

		switch {
		case fastPrev <= slowPrev && fastCur > slowCur:
			points[i] = Point{
				Timestamp:  bar.Timestamp,
				Action:     ActionBuy,
				Price:      bar.Close,
				Confidence: crossConfidence(fastCur, slowCur),
				Reason:     fmt.Sprintf("Golden cross: MA%d(%.2f) > MA%d(%.2f)", fastPeriod, fastCur, slowPeriod, slowCur),
			}
		case fastPrev >= slowPrev && fastCur < slowCur:
			points[i] = Point{
				Timestamp:  bar.Timestamp,
				Action:     ActionShort,
				Price:      bar.Close,
				Confidence: crossConfidence(fastCur, slowCur),
				Reason:     fmt.Sprintf("Death cross: MA%d(%.2f) < MA%d(%.2f)", fastPeriod, fastCur, slowPeriod, slowCur),
			}
		default:
			points[i] = nonePoint(bar, "")
		}
	}
	return points, nil
}

// crossConfidence scales with the relative separation of the two MAs at
// the crossing bar. A hairline cross sits near 0.5, a decisive one near 1.
func crossConfidence(fast, slow float64) float64 {
	if slow == 0 {
		return 0.5
	}
	gap := math.Abs(fast-slow) / math.Abs(slow)
	return clamp01(0.5 + gap*25)
}

package backtest

import (
	"errors"
	"fmt"
	"math"

	"signal-engine/internal/market"
	"signal-engine/internal/strategy"
)

// Fraction of current capital committed per entry.
const capitalPerTrade = 0.10

var ErrNoBars = errors.New("backtest: empty price series")

// Run replays a price series through the configured strategy template
// and simulates trades against it. One position at a time: an opposing
// signal first closes the open trade at the bar's close, then a fresh
// entry is considered on the same bar. The result is fully determined
// by its inputs.
func Run(cfg strategy.Config, bars []market.Bar, initialCapital float64) (*Result, error) {
	if len(bars) == 0 {
		return nil, ErrNoBars
	}
	if initialCapital <= 0 {
		return nil, fmt.Errorf("backtest: initial capital must be positive, got %.2f", initialCapital)
	}

	points, err := strategy.Evaluate(cfg.Template, bars, cfg.Parameters)
	if err != nil {
		return nil, err
	}

	res := &Result{
		StrategyID:     cfg.ID,
		Template:       cfg.Template,
		Symbol:         cfg.Symbol,
		Period:         Period{Start: bars[0].Timestamp, End: bars[len(bars)-1].Timestamp},
		InitialCapital: initialCapital,
		Trades:         []Trade{},
		EquityCurve:    make([]EquityPoint, 0, len(bars)),
	}

	capital := initialCapital
	var open *Trade
	nextID := 1

	peak := initialCapital
	maxDrawdown := 0.0

	for i, bar := range bars {
		pt := points[i]

		if pt.Action != strategy.ActionNone {
			side := SideLong
			if pt.Action == strategy.ActionShort {
				side = SideShort
			}

			// Opposing signal closes the open trade at this bar's close.
			if open != nil && open.Side != side {
				capital += closeTrade(open, bar, pt.Reason)
				res.Trades = append(res.Trades, *open)
				open = nil
			}

			if open == nil {
				qty := math.Floor(capital * capitalPerTrade / bar.Close)
				if qty > 0 {
					open = &Trade{
						ID:         nextID,
						Symbol:     cfg.Symbol,
						Side:       side,
						Quantity:   qty,
						EntryDate:  bar.Timestamp,
						EntryPrice: bar.Close,
						Status:     StatusOpen,
						Reason:     pt.Reason,
					}
					nextID++
				}
			}
		}

		// Equity point on every bar, signal or not, so the curve stays
		// continuous between trades.
		equity := capital + markToMarket(open, bar.Close)
		res.EquityCurve = append(res.EquityCurve, EquityPoint{Date: bar.Timestamp, Value: equity})

		if equity > peak {
			peak = equity
		}
		if dd := (peak - equity) / peak * 100; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	// Force-close anything still open at the final bar's close.
	if open != nil {
		last := bars[len(bars)-1]
		capital += closeTrade(open, last, "end of series")
		res.Trades = append(res.Trades, *open)
		open = nil
	}

	res.FinalCapital = capital
	res.Performance = computePerformance(res.Trades, initialCapital, capital, maxDrawdown)
	return res, nil
}

// closeTrade realizes the trade at the bar's close and returns the PnL.
func closeTrade(t *Trade, bar market.Bar, reason string) float64 {
	t.ExitDate = bar.Timestamp
	t.ExitPrice = bar.Close
	t.PnL = markToMarket(t, bar.Close)
	t.PnLPercent = t.PnL / (t.EntryPrice * t.Quantity) * 100
	t.Status = StatusClosed
	if reason != "" {
		t.Reason = reason
	}
	return t.PnL
}

// markToMarket values an open trade at the given price. Nil-safe.
func markToMarket(t *Trade, price float64) float64 {
	if t == nil {
		return 0
	}
	if t.Side == SideLong {
		return (price - t.EntryPrice) * t.Quantity
	}
	return (t.EntryPrice - price) * t.Quantity
}

func computePerformance(trades []Trade, initial, final, maxDrawdown float64) Performance {
	perf := Performance{
		TotalTrades:        len(trades),
		TotalReturn:        final - initial,
		TotalReturnPercent: (final - initial) / initial * 100,
		MaxDrawdown:        maxDrawdown,
	}

	var closed int
	var winSum, lossSum float64
	for _, t := range trades {
		if t.Status != StatusClosed {
			continue
		}
		closed++
		if t.PnL > 0 {
			perf.WinningTrades++
			winSum += t.PnL
		} else if t.PnL < 0 {
			perf.LosingTrades++
			lossSum += -t.PnL
		}
	}

	if closed > 0 {
		perf.WinRate = float64(perf.WinningTrades) / float64(closed)
	}
	if perf.WinningTrades > 0 {
		perf.AvgWin = winSum / float64(perf.WinningTrades)
	}
	if perf.LosingTrades > 0 {
		perf.AvgLoss = lossSum / float64(perf.LosingTrades)
	}
	if perf.AvgLoss > 0 {
		perf.ProfitFactor = perf.AvgWin / perf.AvgLoss
	}
	return perf
}

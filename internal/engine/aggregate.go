package engine

import (
	"fmt"
	"math"
	"time"

	"signal-engine/internal/strategy"
)

// Aggregation methods.
const (
	MethodMajority  = "majority"
	MethodUnanimous = "unanimous"
	MethodWeighted  = "weighted"
)

// ValidMethod reports whether name is a supported aggregation method.
// Settings updates call this so a bad value is rejected up front
// instead of silently aggregating to nothing forever.
func ValidMethod(name string) bool {
	switch name {
	case MethodMajority, MethodUnanimous, MethodWeighted:
		return true
	}
	return false
}

// AggregationSettings control how per-strategy signals combine into one
// decision.
type AggregationSettings struct {
	Method         string             `json:"method"`
	MinimumSignals int                `json:"minimum_signals"`
	Weights        map[string]float64 `json:"weights,omitempty"` // strategy id -> weight, default 1
}

// Decision is the aggregate of all strategies' signals for one symbol
// at one evaluation.
type Decision struct {
	Symbol       string          `json:"symbol"`
	Action       strategy.Action `json:"action"`
	Confidence   float64         `json:"confidence"`
	Price        float64         `json:"price"`
	Timestamp    time.Time       `json:"timestamp"`
	Contributing int             `json:"contributing"` // non-none signals considered
	Reason       string          `json:"reason,omitempty"`
}

// Scores below this magnitude count as a dead heat in weighted mode.
const weightedEpsilon = 1e-9

// Aggregate combines the signals for one symbol under the given
// settings. Signals with action none never vote but a decision is
// still produced for every call, action none when nothing actionable
// came out.
func Aggregate(symbol string, signals []strategy.Signal, s AggregationSettings) (Decision, error) {
	dec := Decision{Symbol: symbol, Action: strategy.ActionNone}

	var active []strategy.Signal
	for _, sig := range signals {
		if sig.Action != strategy.ActionNone {
			active = append(active, sig)
		}
		if sig.Timestamp.After(dec.Timestamp) {
			dec.Timestamp = sig.Timestamp
			dec.Price = sig.Price
		}
	}
	dec.Contributing = len(active)

	minSignals := s.MinimumSignals
	if minSignals <= 0 {
		minSignals = 1
	}
	if len(active) < minSignals {
		dec.Reason = fmt.Sprintf("%d active signals, need %d", len(active), minSignals)
		return dec, nil
	}

	switch s.Method {
	case MethodMajority, "":
		return aggregateMajority(dec, active), nil
	case MethodUnanimous:
		return aggregateUnanimous(dec, active), nil
	case MethodWeighted:
		return aggregateWeighted(dec, active, s.Weights), nil
	default:
		return dec, fmt.Errorf("unsupported aggregation method %q", s.Method)
	}
}

func aggregateMajority(dec Decision, active []strategy.Signal) Decision {
	var buys, shorts int
	var buyConf, shortConf float64
	for _, sig := range active {
		if sig.Action == strategy.ActionBuy {
			buys++
			buyConf += sig.Confidence
		} else {
			shorts++
			shortConf += sig.Confidence
		}
	}

	switch {
	case buys > shorts:
		dec.Action = strategy.ActionBuy
		dec.Confidence = buyConf / float64(buys)
	case shorts > buys:
		dec.Action = strategy.ActionShort
		dec.Confidence = shortConf / float64(shorts)
	default:
		dec.Reason = fmt.Sprintf("majority tie: %d buy vs %d short", buys, shorts)
	}
	return dec
}

func aggregateUnanimous(dec Decision, active []strategy.Signal) Decision {
	first := active[0].Action
	var conf float64
	for _, sig := range active {
		if sig.Action != first {
			dec.Reason = "signals disagree"
			return dec
		}
		conf += sig.Confidence
	}
	dec.Action = first
	dec.Confidence = conf / float64(len(active))
	return dec
}

// aggregateWeighted sums signed confidence: buy contributes
// +weight*confidence, short contributes -weight*confidence. The sign of
// the sum picks the action and its magnitude, normalized by the total
// weight in play, becomes the decision confidence.
func aggregateWeighted(dec Decision, active []strategy.Signal, weights map[string]float64) Decision {
	var score, totalWeight float64
	for _, sig := range active {
		w := 1.0
		if v, ok := weights[sig.StrategyID]; ok && v > 0 {
			w = v
		}
		totalWeight += w
		if sig.Action == strategy.ActionBuy {
			score += w * sig.Confidence
		} else {
			score -= w * sig.Confidence
		}
	}

	if math.Abs(score) < weightedEpsilon || totalWeight == 0 {
		dec.Reason = "weighted score balanced"
		return dec
	}

	if score > 0 {
		dec.Action = strategy.ActionBuy
	} else {
		dec.Action = strategy.ActionShort
	}
	dec.Confidence = math.Min(1, math.Abs(score)/totalWeight)
	return dec
}

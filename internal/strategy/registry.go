package strategy

import (
	"errors"
	"fmt"
	"sort"

	"signal-engine/internal/market"
)

// ErrUnknownTemplate is returned when a config names a template id that
// no rule implements. This is a hard error: substituting any fallback
// output would make backtests non-reproducible.
var ErrUnknownTemplate = errors.New("unknown strategy template")

// Template identifiers.
const (
	TemplateRSIOversold = "rsi-oversold"
	TemplateMACrossover = "moving-average-crossover"
	TemplateBollinger   = "bollinger-bands"
)

// Rule evaluates a price series under a parameter set and returns one
// point per bar. Rules are pure: same bars and params, same output.
type Rule func(bars []market.Bar, p Params) ([]Point, error)

var rules = map[string]Rule{
	TemplateRSIOversold: rsiOversoldRule,
	TemplateMACrossover: maCrossoverRule,
	TemplateBollinger:   bollingerRule,
}

// Evaluate runs the rule registered for templateID over the series.
func Evaluate(templateID string, bars []market.Bar, p Params) ([]Point, error) {
	rule, ok := rules[templateID]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, templateID)
	}
	return rule(bars, p)
}

// KnownTemplate reports whether templateID has a registered rule.
func KnownTemplate(templateID string) bool {
	_, ok := rules[templateID]
	return ok
}

// Templates lists the registered template identifiers in stable order.
func Templates() []string {
	ids := make([]string, 0, len(rules))
	for id := range rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// nonePoint builds a neutral point for a bar, with an optional reason.
func nonePoint(bar market.Bar, reason string) Point {
	return Point{
		Timestamp: bar.Timestamp,
		Action:    ActionNone,
		Price:     bar.Close,
		Reason:    reason,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

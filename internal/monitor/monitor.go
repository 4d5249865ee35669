package monitor

import (
	"context"
	"fmt"
	"log"

	"signal-engine/internal/events"
	"signal-engine/internal/order"
	"signal-engine/internal/risk"
	"signal-engine/internal/strategy"
)

// AlertStore archives risk alerts. Write failures are logged and
// swallowed; alert delivery never depends on the database.
type AlertStore interface {
	SaveRiskAlert(ctx context.Context, a risk.Alert) error
}

// Monitor watches the bus and forwards noteworthy events to the alert
// sink. Delivery is fire-and-forget: a sink failure is logged and the
// event dropped, never propagated back into the engine.
type Monitor struct {
	Bus   *events.Bus
	Sink  AlertSink
	Store AlertStore // optional
}

func (m *Monitor) Start(ctx context.Context) {
	if m.Bus == nil || m.Sink == nil {
		log.Println("[monitor] not fully configured; skipping")
		return
	}

	alerts, unsubAlerts := m.Bus.Subscribe(events.EventRiskAlert, 50)
	signals, unsubSignals := m.Bus.Subscribe(events.EventStrategySignal, 50)
	filled, unsubFilled := m.Bus.Subscribe(events.EventOrderFilled, 50)
	rejected, unsubRejected := m.Bus.Subscribe(events.EventOrderRejected, 50)

	go func() {
		defer unsubAlerts()
		defer unsubSignals()
		defer unsubFilled()
		defer unsubRejected()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-alerts:
				if !ok {
					return
				}
				m.archive(ctx, msg)
				m.deliver(formatRiskAlert(msg))
			case msg, ok := <-signals:
				if !ok {
					return
				}
				if text, ok := formatSignal(msg); ok {
					m.deliver(text)
				}
			case msg, ok := <-filled:
				if !ok {
					return
				}
				m.deliver(formatFill(msg))
			case msg, ok := <-rejected:
				if !ok {
					return
				}
				m.deliver(formatRejection(msg))
			}
		}
	}()
}

func (m *Monitor) archive(ctx context.Context, msg any) {
	if m.Store == nil {
		return
	}
	alert, ok := msg.(risk.Alert)
	if !ok {
		return
	}
	if err := m.Store.SaveRiskAlert(ctx, alert); err != nil {
		log.Printf("[monitor] alert persist failed (continuing): %v", err)
	}
}

func (m *Monitor) deliver(message string) {
	if err := m.Sink.Send(message); err != nil {
		log.Printf("[monitor] alert delivery failed (ignored): %v", err)
	}
}

func formatRiskAlert(msg any) string {
	if a, ok := msg.(risk.Alert); ok {
		return fmt.Sprintf("RISK %s [%s]: %s", a.Level, a.Code, a.Message)
	}
	return "risk alert triggered"
}

// formatSignal only reports actionable signals; the steady stream of
// none signals would drown everything else.
func formatSignal(msg any) (string, bool) {
	sig, ok := msg.(strategy.Signal)
	if !ok || sig.Action == strategy.ActionNone {
		return "", false
	}
	return fmt.Sprintf("SIGNAL %s %s @ %.2f (confidence %.2f, %s)",
		sig.Action, sig.Symbol, sig.Price, sig.Confidence, sig.StrategyID), true
}

func formatFill(msg any) string {
	if f, ok := msg.(order.Fill); ok {
		return fmt.Sprintf("TRADE %s %s %.4f @ %.2f", f.Side, f.Symbol, f.Qty, f.Price)
	}
	return "order filled"
}

func formatRejection(msg any) string {
	if o, ok := msg.(order.Order); ok {
		return fmt.Sprintf("TRADE FAILED %s %s %.4f: %s", o.Side, o.Symbol, o.Qty, o.Note)
	}
	return "order rejected"
}

package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveSignal archives a generated signal.
func (d *Database) SaveSignal(ctx context.Context, s SignalRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO signals (strategy_id, symbol, action, confidence, price, reasoning, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, s.StrategyID, s.Symbol, s.Action, s.Confidence, s.Price, s.Reasoning, s.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert signal: %w", err)
	}
	return nil
}

// RecentSignals returns the latest signals for a symbol, newest first.
// An empty symbol returns signals across all symbols.
func (d *Database) RecentSignals(ctx context.Context, symbol string, limit int) ([]SignalRow, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, COALESCE(strategy_id, ''), symbol, action, confidence, price, COALESCE(reasoning, ''), created_at
		FROM signals
	`
	args := []any{}
	if symbol != "" {
		query += " WHERE symbol = ?"
		args = append(args, symbol)
	}
	query += " ORDER BY created_at DESC, id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := d.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(&s.ID, &s.StrategyID, &s.Symbol, &s.Action, &s.Confidence, &s.Price, &s.Reasoning, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveOrder inserts (or replaces) an order row.
func (d *Database) SaveOrder(ctx context.Context, o OrderRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO orders (id, strategy_id, symbol, side, type, qty, price, fill_price, fee, time_in_force, status, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			fill_price = excluded.fill_price,
			fee = excluded.fee,
			note = excluded.note
	`, o.ID, o.StrategyID, o.Symbol, o.Side, o.Type, o.Qty, o.Price, o.FillPrice, o.Fee, o.TimeInForce, o.Status, o.Note, o.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}

// UpdateOrderStatus records the outcome of an order.
func (d *Database) UpdateOrderStatus(ctx context.Context, id, status string, fillPrice, fee float64) error {
	_, err := d.DB.ExecContext(ctx, `
		UPDATE orders SET status = ?, fill_price = ?, fee = ? WHERE id = ?
	`, status, fillPrice, fee, id)
	if err != nil {
		return fmt.Errorf("update order %s: %w", id, err)
	}
	return nil
}

// RecentOrders returns the latest orders, newest first.
func (d *Database) RecentOrders(ctx context.Context, limit int) ([]OrderRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.DB.QueryContext(ctx, `
		SELECT id, COALESCE(strategy_id, ''), symbol, side, type, qty, price, fill_price, fee,
		       COALESCE(time_in_force, ''), status, COALESCE(note, ''), created_at
		FROM orders
		ORDER BY created_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var out []OrderRow
	for rows.Next() {
		var o OrderRow
		if err := rows.Scan(&o.ID, &o.StrategyID, &o.Symbol, &o.Side, &o.Type, &o.Qty, &o.Price,
			&o.FillPrice, &o.Fee, &o.TimeInForce, &o.Status, &o.Note, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveBacktest archives a completed backtest run.
func (d *Database) SaveBacktest(ctx context.Context, b BacktestRow) (int64, error) {
	res, err := d.DB.ExecContext(ctx, `
		INSERT INTO backtest_runs (strategy_id, template, symbol, initial_capital, final_capital, result)
		VALUES (?, ?, ?, ?, ?, ?)
	`, b.StrategyID, b.Template, b.Symbol, b.InitialCapital, b.FinalCapital, b.Result)
	if err != nil {
		return 0, fmt.Errorf("insert backtest run: %w", err)
	}
	return res.LastInsertId()
}

// SaveRiskAlert archives a risk alert.
func (d *Database) SaveRiskAlert(ctx context.Context, a AlertRow) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO risk_alerts (level, code, message) VALUES (?, ?, ?)
	`, a.Level, a.Code, a.Message)
	if err != nil {
		return fmt.Errorf("insert risk alert: %w", err)
	}
	return nil
}

// SaveAutoTradingSettings stores the settings blob (single row table).
func (d *Database) SaveAutoTradingSettings(ctx context.Context, payload string) error {
	_, err := d.DB.ExecContext(ctx, `
		INSERT INTO auto_trading_settings (id, payload, updated_at)
		VALUES (1, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = CURRENT_TIMESTAMP
	`, payload)
	if err != nil {
		return fmt.Errorf("save auto trading settings: %w", err)
	}
	return nil
}

// LoadAutoTradingSettings returns the stored settings blob, or "" when
// none has been saved yet.
func (d *Database) LoadAutoTradingSettings(ctx context.Context) (string, error) {
	var payload string
	err := d.DB.QueryRowContext(ctx, `SELECT payload FROM auto_trading_settings WHERE id = 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", err
	}
	return payload, nil
}

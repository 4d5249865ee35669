package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"syscall"

	"signal-engine/internal/api"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/indicators"
	"signal-engine/internal/market"
	"signal-engine/internal/monitor"
	"signal-engine/internal/order"
	"signal-engine/internal/risk"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/config"
	"signal-engine/pkg/db"
)

// signalStore persists emitted signals through the database layer.
type signalStore struct {
	db *db.Database
}

func (s signalStore) SaveSignal(ctx context.Context, sig strategy.Signal) error {
	return s.db.SaveSignal(ctx, db.SignalRow{
		StrategyID: sig.StrategyID,
		Symbol:     sig.Symbol,
		Action:     string(sig.Action),
		Confidence: sig.Confidence,
		Price:      sig.Price,
		Reasoning:  sig.Meta.Reasoning,
	})
}

// orderStore persists the order lifecycle through the database layer.
type orderStore struct {
	db *db.Database
}

func (s orderStore) SaveOrder(ctx context.Context, o order.Order) error {
	return s.db.SaveOrder(ctx, db.OrderRow{
		ID:          o.ID,
		StrategyID:  o.StrategyID,
		Symbol:      o.Symbol,
		Side:        o.Side,
		Type:        o.Type,
		Qty:         o.Qty,
		Price:       o.Price,
		FillPrice:   o.FillPrice,
		Fee:         o.Fee,
		TimeInForce: o.TimeInForce,
		Status:      o.Status,
		Note:        o.Note,
		CreatedAt:   o.CreatedAt,
	})
}

func (s orderStore) UpdateOrderStatus(ctx context.Context, id, status string, fillPrice, fee float64) error {
	return s.db.UpdateOrderStatus(ctx, id, status, fillPrice, fee)
}

// alertStore archives risk alerts through the database layer.
type alertStore struct {
	db *db.Database
}

func (s alertStore) SaveRiskAlert(ctx context.Context, a risk.Alert) error {
	return s.db.SaveRiskAlert(ctx, db.AlertRow{
		Level:   a.Level,
		Code:    a.Code,
		Message: a.Message,
	})
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("starting signal engine on port %s (symbols: %v)", cfg.Port, cfg.Symbols)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Core services
	bus := events.NewBus()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("db init failed: %v", err)
	}
	defer database.Close()
	if err := db.ApplyMigrations(database); err != nil {
		log.Fatalf("db migrations failed: %v", err)
	}

	history := market.NewHistory(cfg.HistoryWindow)
	indEngine := indicators.NewEngine(7, 25, 14, cfg.HistoryWindow)

	// Risk manager
	riskSettings := risk.Settings{
		EnableRiskManagement: true,
		MaxPositionSize:      cfg.MaxPositionSize,
		StopLossPercent:      cfg.StopLossPercent,
		TakeProfitPercent:    cfg.TakeProfitPercent,
		MaxDailyLoss:         cfg.MaxDailyLoss,
	}
	riskMgr := risk.NewManager(riskSettings, risk.NewBook(), bus)

	// Order flow: paper gateway behind a rate-limited executor with an
	// async fan-out on top.
	gateway := order.NewPaperGateway(cfg.PaperBalance, cfg.PaperFeeRate, cfg.PaperSlippageBp, 0)
	exec := order.NewExecutor(gateway, orderStore{database}, bus, cfg.OrdersPerSec)
	asyncExec := order.NewAsyncExecutor(exec, cfg.ExecWorkers)
	orderQueue := order.NewQueue(0)
	go orderQueue.Drain(ctx, func(o order.Order) {
		asyncExec.ExecuteAsync(ctx, o)
	})

	// Engine
	eng := engine.New(engine.Config{
		Symbols:        cfg.Symbols,
		TickInterval:   cfg.TickInterval,
		SignalInterval: cfg.SignalInterval,
		RiskInterval:   cfg.RiskInterval,
		InitialCapital: cfg.InitialCapital,
		MinConfidence:  cfg.MinConfidence,
	}, engine.Deps{
		Bus:        bus,
		History:    history,
		Indicators: indEngine,
		Risk:       riskMgr,
		Queue:      orderQueue,
		Exec:       asyncExec,
		Store:      signalStore{database},
	})

	// Strategies from YAML, synced to the DB, then the enabled set is
	// read back so the engine runs what the database says is active.
	if configs, err := strategy.LoadConfig(cfg.StrategiesYml); err != nil {
		log.Printf("strategy config load failed: %v", err)
	} else {
		if err := strategy.SyncConfigToDB(database.DB, configs); err != nil {
			log.Printf("strategy sync failed: %v", err)
		}
		if enabled, err := strategy.LoadEnabled(database.DB); err != nil {
			log.Printf("strategy read-back failed, using file configs: %v", err)
			eng.SetStrategies(configs)
		} else {
			eng.SetStrategies(enabled)
			log.Printf("loaded %d enabled strategies (%d in %s)", len(enabled), len(configs), cfg.StrategiesYml)
		}
	}

	// Auto-trading settings: persisted ones win over env defaults.
	settings := engine.AutoTradingSettings{
		Enabled:        false,
		RiskManagement: riskSettings,
		SignalAggregation: engine.AggregationSettings{
			Method:         cfg.AggregationMethod,
			MinimumSignals: cfg.MinimumSignals,
		},
	}
	if payload, err := database.LoadAutoTradingSettings(ctx); err != nil {
		log.Printf("auto-trading settings load failed: %v", err)
	} else if payload != "" {
		var saved engine.AutoTradingSettings
		if err := json.Unmarshal([]byte(payload), &saved); err != nil {
			log.Printf("auto-trading settings unmarshal failed: %v", err)
		} else {
			settings = saved
		}
	}
	if err := eng.UpdateAutoTradingSettings(settings); err != nil {
		log.Printf("auto-trading settings rejected, keeping defaults: %v", err)
	}

	// Alert monitor
	mon := monitor.Monitor{Bus: bus, Sink: monitor.LogSink{}, Store: alertStore{database}}
	mon.Start(ctx)

	// Market data: optional CSV preload, then the mock feed.
	if cfg.CSVPath != "" {
		bars, err := market.LoadCSV(cfg.CSVPath)
		if err != nil {
			log.Printf("csv preload failed: %v", err)
		} else {
			for _, sym := range cfg.Symbols {
				for _, b := range bars {
					history.Append(sym, b)
				}
			}
			log.Printf("preloaded %d bars from %s", len(bars), cfg.CSVPath)
		}
	}
	if cfg.UseMockFeed {
		mock := market.MockFeed{
			Bus:        bus,
			Symbols:    cfg.Symbols,
			StartPrice: cfg.MockStart,
			Step:       cfg.MockStep,
			Interval:   cfg.TickInterval,
		}
		mock.Start(ctx)
		log.Println("✅ mock feed started")
	}

	// Surface async execution failures in the log.
	go func() {
		for result := range asyncExec.Results() {
			if !result.Success {
				log.Printf("❌ execution %s failed after %v: %s", result.OrderID, result.Latency, result.ErrorMsg)
			}
		}
	}()

	if err := eng.Start(ctx); err != nil {
		log.Fatalf("engine start failed: %v", err)
	}
	log.Println("✅ engine started")

	// API
	server := api.NewServer(bus, database, riskMgr, eng, history, api.SystemMeta{
		Symbols:     cfg.Symbols,
		UseMockFeed: cfg.UseMockFeed,
		Version:     getVersion(),
	})
	go func() {
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down...")

	cancel()
	if orphaned := eng.Stop(); orphaned > 0 {
		log.Printf("⚠️ %d execution(s) still in flight at shutdown", orphaned)
	}
	orderQueue.Close()
	bus.Close()
	log.Println("shutdown complete")
}

func getVersion() string {
	if v := os.Getenv("APP_VERSION"); v != "" {
		return v
	}
	return "v1.0-dev"
}

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"signal-engine/internal/backtest"
	"signal-engine/internal/engine"
	"signal-engine/internal/events"
	"signal-engine/internal/market"
	"signal-engine/internal/risk"
	"signal-engine/internal/strategy"
	"signal-engine/pkg/db"
)

// Server wires the HTTP surface around the engine and the event bus.
// Authentication is handled upstream; nothing here checks credentials.
type Server struct {
	Router  *gin.Engine
	Bus     *events.Bus
	DB      *db.Database
	RiskMgr *risk.Manager
	Engine  *engine.Engine
	History *market.History
	Meta    SystemMeta
}

// SystemMeta describes runtime status exposed to clients.
type SystemMeta struct {
	Symbols     []string `json:"symbols"`
	UseMockFeed bool     `json:"use_mock_feed"`
	Version     string   `json:"version"`
}

func NewServer(bus *events.Bus, database *db.Database, riskMgr *risk.Manager, eng *engine.Engine, history *market.History, meta SystemMeta) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:  r,
		Bus:     bus,
		DB:      database,
		RiskMgr: riskMgr,
		Engine:  eng,
		History: history,
		Meta:    meta,
	}
	s.routes()
	return s
}

// Start blocks serving HTTP on addr.
func (s *Server) Start(addr string) error {
	log.Printf("[api] listening on %s", addr)
	return s.Router.Run(addr)
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/positions", s.getPositions)
		api.GET("/signals", s.getSignals)
		api.GET("/orders", s.getOrders)
		api.GET("/indicators", s.getIndicators)
		api.GET("/risk/metrics", s.getRiskMetrics)
		api.GET("/strategies", s.getStrategies)
		api.GET("/settings/auto-trading", s.getAutoTradingSettings)
		api.PUT("/settings/auto-trading", s.updateAutoTradingSettings)
		api.POST("/backtest", s.runBacktest)
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC()})
}

func (s *Server) getStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"engine": s.Engine.Status(),
		"meta":   s.Meta,
	})
}

func (s *Server) getPositions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"positions": s.RiskMgr.Book().List()})
}

// getSignals serves archived signals from the database when available,
// falling back to the engine's in-memory last evaluation.
func (s *Server) getSignals(c *gin.Context) {
	symbol := c.Query("symbol")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	if s.DB != nil {
		rows, err := s.DB.RecentSignals(c.Request.Context(), symbol, limit)
		if err == nil {
			c.JSON(http.StatusOK, gin.H{"signals": rows})
			return
		}
		log.Printf("[api] signal query failed, serving in-memory view: %v", err)
	}
	c.JSON(http.StatusOK, gin.H{"signals": s.Engine.LastSignals(symbol)})
}

func (s *Server) getOrders(c *gin.Context) {
	if s.DB == nil {
		c.JSON(http.StatusOK, gin.H{"orders": []db.OrderRow{}})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	rows, err := s.DB.RecentOrders(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": rows})
}

func (s *Server) getIndicators(c *gin.Context) {
	symbol := c.Query("symbol")
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"symbol":     symbol,
		"indicators": s.Engine.Indicators(symbol),
	})
}

func (s *Server) getRiskMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, s.RiskMgr.Metrics())
}

func (s *Server) getStrategies(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"strategies": s.Engine.Strategies()})
}

func (s *Server) getAutoTradingSettings(c *gin.Context) {
	c.JSON(http.StatusOK, s.Engine.AutoTradingSettings())
}

// updateAutoTradingSettings validates and applies a settings change.
// An unsupported aggregation method is rejected here, at update time.
func (s *Server) updateAutoTradingSettings(c *gin.Context) {
	var settings engine.AutoTradingSettings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid settings payload: " + err.Error()})
		return
	}

	if err := s.Engine.UpdateAutoTradingSettings(settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Persist the accepted settings; a write failure never fails the
	// update itself.
	if s.DB != nil {
		if payload, err := json.Marshal(settings); err == nil {
			if err := s.DB.SaveAutoTradingSettings(c.Request.Context(), string(payload)); err != nil {
				log.Printf("[api] settings persist failed (continuing): %v", err)
			}
		}
	}

	c.JSON(http.StatusOK, settings)
}

// BacktestRequest is the run-backtest payload. Bars come from an
// uploaded CSV path or, when omitted, the live history window.
type BacktestRequest struct {
	ID             string          `json:"id"`
	Template       string          `json:"template"`
	Symbol         string          `json:"symbol"`
	Parameters     strategy.Params `json:"parameters"`
	InitialCapital float64         `json:"initial_capital"`
	CSVPath        string          `json:"csv_path,omitempty"`
}

func (s *Server) runBacktest(c *gin.Context) {
	var req BacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid backtest payload: " + err.Error()})
		return
	}
	if req.InitialCapital <= 0 {
		req.InitialCapital = 10000
	}

	var bars []market.Bar
	if req.CSVPath != "" {
		loaded, err := market.LoadCSV(req.CSVPath)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "load csv: " + err.Error()})
			return
		}
		bars = loaded
	} else if s.History != nil {
		bars = s.History.Window(req.Symbol)
	}
	if len(bars) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no price data for " + req.Symbol})
		return
	}

	cfg := strategy.Config{
		ID:         req.ID,
		Template:   req.Template,
		Symbol:     req.Symbol,
		Parameters: req.Parameters,
		Enabled:    true,
	}
	result, err := backtest.Run(cfg, bars, req.InitialCapital)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, strategy.ErrUnknownTemplate) || errors.Is(err, backtest.ErrNoBars) {
			status = http.StatusBadRequest
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	// Archive the run; failures are logged and the result still served.
	if s.DB != nil {
		if blob, err := json.Marshal(result); err == nil {
			if _, err := s.DB.SaveBacktest(c.Request.Context(), db.BacktestRow{
				StrategyID:     result.StrategyID,
				Template:       result.Template,
				Symbol:         result.Symbol,
				InitialCapital: result.InitialCapital,
				FinalCapital:   result.FinalCapital,
				Result:         string(blob),
			}); err != nil {
				log.Printf("[api] backtest persist failed (continuing): %v", err)
			}
		}
	}

	c.JSON(http.StatusOK, result)
}

package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the signal trader.
type Metrics struct {
	TradesPlaced   *prometheus.CounterVec // labels: broker, paper
	TradesByStatus *prometheus.CounterVec // labels: status
	OrderPlaceDur  prometheus.Histogram
	GateDecisions  *prometheus.CounterVec // labels: decision
	GateBlocks     *prometheus.CounterVec // labels: reason

	ResolverRequests    prometheus.Counter
	ResolverUnconfirmed prometheus.Counter
	InstrumentCount     prometheus.Gauge

	SyncSweeps    prometheus.Counter
	SyncUpdates   prometheus.Counter
	SyncErrors    prometheus.Counter
	SyncDur       prometheus.Histogram
	ActiveTrades  prometheus.Gauge
	BrokerSession *prometheus.GaugeVec // labels: broker; 1=logged in
}

// NewMetrics registers and returns all Prometheus metrics.
func NewMetrics() *Metrics {
	m := &Metrics{
		TradesPlaced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_trades_placed_total",
			Help: "Trades submitted to a broker (by broker and paper flag)",
		}, []string{"broker", "paper"}),
		TradesByStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_trade_status_total",
			Help: "Trade lifecycle transitions (by resulting status)",
		}, []string{"status"}),
		OrderPlaceDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signaltrader_order_place_duration_seconds",
			Help:    "Broker order placement latency",
			Buckets: prometheus.DefBuckets,
		}),
		GateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_gate_decisions_total",
			Help: "Auto-trade gate outcomes (allowed, blocked)",
		}, []string{"decision"}),
		GateBlocks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "signaltrader_gate_blocks_total",
			Help: "Auto-trade gate blocks by first failing check",
		}, []string{"reason"}),

		ResolverRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_resolver_requests_total",
			Help: "Symbol resolution attempts",
		}),
		ResolverUnconfirmed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_resolver_unconfirmed_total",
			Help: "Resolutions that fell back to a constructed, unvalidated symbol",
		}),
		InstrumentCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaltrader_instruments_loaded",
			Help: "Instruments currently held by the in-memory index",
		}),

		SyncSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_sync_sweeps_total",
			Help: "Reconciliation sweeps executed",
		}),
		SyncUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_sync_updates_total",
			Help: "Trade rows updated by reconciliation",
		}),
		SyncErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "signaltrader_sync_errors_total",
			Help: "Per-trade errors during reconciliation",
		}),
		SyncDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "signaltrader_sync_duration_seconds",
			Help:    "Reconciliation sweep latency",
			Buckets: prometheus.DefBuckets,
		}),
		ActiveTrades: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "signaltrader_active_trades",
			Help: "Trades currently in a non-terminal status",
		}),
		BrokerSession: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "signaltrader_broker_session",
			Help: "Broker session state (1=logged in, 0=logged out)",
		}, []string{"broker"}),
	}

	prometheus.MustRegister(
		m.TradesPlaced,
		m.TradesByStatus,
		m.OrderPlaceDur,
		m.GateDecisions,
		m.GateBlocks,
		m.ResolverRequests,
		m.ResolverUnconfirmed,
		m.InstrumentCount,
		m.SyncSweeps,
		m.SyncUpdates,
		m.SyncErrors,
		m.SyncDur,
		m.ActiveTrades,
		m.BrokerSession,
	)

	return m
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	SQLiteOK        bool      `json:"sqlite_ok"`
	RedisConnected  bool      `json:"redis_connected"`
	IndexLoaded     bool      `json:"index_loaded"`
	ActiveBroker    string    `json:"active_broker"`
	BrokerLoggedIn  bool      `json:"broker_logged_in"`
	LastSyncAt      time.Time `json:"last_sync_at"`
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
	}
}

func (h *HealthStatus) SetIndexLoaded(v bool) {
	h.mu.Lock()
	h.IndexLoaded = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetBrokerSession(broker string, loggedIn bool) {
	h.mu.Lock()
	h.ActiveBroker = broker
	h.BrokerLoggedIn = loggedIn
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastSync(t time.Time) {
	h.mu.Lock()
	h.LastSyncAt = t
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK
	if !h.SQLiteOK {
		overallStatus = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	} else if !h.IndexLoaded || !h.BrokerLoggedIn {
		overallStatus = "degraded"
	}

	lastSync := ""
	if !h.LastSyncAt.IsZero() {
		lastSync = h.LastSyncAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string  `json:"status"`
		Uptime          string  `json:"uptime"`
		SQLiteOK        bool    `json:"sqlite_ok"`
		SQLiteLatencyMs float64 `json:"sqlite_latency_ms"`
		RedisConnected  bool    `json:"redis_connected"`
		RedisLatencyMs  float64 `json:"redis_latency_ms"`
		IndexLoaded     bool    `json:"index_loaded"`
		ActiveBroker    string  `json:"active_broker"`
		BrokerLoggedIn  bool    `json:"broker_logged_in"`
		LastSyncAt      string  `json:"last_sync_at"`
		LastCheckAt     string  `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		IndexLoaded:     h.IndexLoaded,
		ActiveBroker:    h.ActiveBroker,
		BrokerLoggedIn:  h.BrokerLoggedIn,
		LastSyncAt:      lastSync,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}

package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/joho/godotenv"

	"github.com/khannoor710/TelegramSignalTrader/config"
	"github.com/khannoor710/TelegramSignalTrader/internal/broker"
	"github.com/khannoor710/TelegramSignalTrader/internal/broker/angelone"
	"github.com/khannoor710/TelegramSignalTrader/internal/broker/shoonya"
	"github.com/khannoor710/TelegramSignalTrader/internal/broker/zerodha"
	"github.com/khannoor710/TelegramSignalTrader/internal/events"
	"github.com/khannoor710/TelegramSignalTrader/internal/execution"
	"github.com/khannoor710/TelegramSignalTrader/internal/instruments"
	"github.com/khannoor710/TelegramSignalTrader/internal/logger"
	"github.com/khannoor710/TelegramSignalTrader/internal/metrics"
	"github.com/khannoor710/TelegramSignalTrader/internal/model"
	"github.com/khannoor710/TelegramSignalTrader/internal/resolver"
	"github.com/khannoor710/TelegramSignalTrader/internal/secret"
	"github.com/khannoor710/TelegramSignalTrader/internal/signals"
	sqlitestore "github.com/khannoor710/TelegramSignalTrader/internal/store/sqlite"
	"github.com/khannoor710/TelegramSignalTrader/internal/trading"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.Println("[signaltrader] starting...")

	if err := godotenv.Load(); err == nil {
		log.Println("[signaltrader] loaded .env")
	}

	cfg := config.Load()
	appLog := logger.Init("signaltrader", slog.LevelInfo)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// ---- Credential encryption ----
	key := cfg.EncryptionKey
	if key == "" {
		fresh, err := secret.NewKey()
		if err != nil {
			log.Fatalf("[signaltrader] generate encryption key: %v", err)
		}
		key = fresh
		log.Printf("[signaltrader] WARNING: ENCRYPTION_KEY not set. Generated an ephemeral key; stored broker secrets will not survive a restart. Set ENCRYPTION_KEY=%s to persist.", fresh)
	}
	codec, err := secret.NewCodec(key)
	if err != nil {
		log.Fatalf("[signaltrader] bad encryption key: %v", err)
	}

	// ---- SQLite store ----
	os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755)
	store, err := sqlitestore.New(sqlitestore.Config{DBPath: cfg.SQLitePath, Codec: codec})
	if err != nil {
		log.Fatalf("[signaltrader] sqlite init failed: %v", err)
	}
	defer store.Close()
	log.Println("[signaltrader] sqlite store ready")

	// ---- Metrics & health ----
	prom := metrics.NewMetrics()
	health := metrics.NewHealthStatus()
	health.CheckSQLite(ctx, store.DB())
	metricsSrv := metrics.NewServer(cfg.MetricsAddr, health)
	metricsSrv.Start()

	// ---- Instrument index ----
	index := instruments.New(instruments.NewHTTPFetcher(), cfg.InstrumentCachePath, cfg.InstrumentCacheTTL, appLog)
	go func() {
		if index.Load(ctx, false) {
			health.SetIndexLoaded(true)
			prom.InstrumentCount.Set(float64(index.Count()))
		}
	}()

	// ---- Symbol resolver ----
	ov, err := resolver.LoadOverrides(cfg.ResolverConfigPath)
	if err != nil {
		log.Printf("[signaltrader] resolver overrides: %v (using built-in tables)", err)
	}
	res := resolver.New(index, ov, appLog)
	res.OnResolve = func(out model.ResolvedSymbol) {
		prom.ResolverRequests.Inc()
		if !out.Confirmed() {
			prom.ResolverUnconfirmed.Inc()
		}
	}

	// ---- Broker registry ----
	reg := broker.NewRegistry()
	deactivate := func(id string) func() {
		return func() {
			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			if err := store.DeactivateBrokerConfig(dctx, id); err != nil {
				log.Printf("[signaltrader] deactivate %s config: %v", id, err)
			}
			health.SetBrokerSession(id, false)
			prom.BrokerSession.WithLabelValues(id).Set(0)
		}
	}
	reg.Register("angelone", func() broker.Broker {
		b := angelone.New(index, appLog)
		b.OnSessionExpired = deactivate("angelone")
		return b
	})
	reg.Register("zerodha", func() broker.Broker {
		b := zerodha.New(index, appLog)
		b.OnSessionExpired = deactivate("zerodha")
		return b
	})
	reg.Register("shoonya", func() broker.Broker {
		b := shoonya.New(appLog)
		b.OnSessionExpired = deactivate("shoonya")
		return b
	})
	restoreSessions(ctx, reg, store, health, prom)

	// ---- Event sinks ----
	bus := events.NewBus(&events.LogNotifier{})
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		bus.Attach(events.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
		log.Println("[signaltrader] telegram notifier attached")
	}
	if cfg.WebhookURL != "" {
		bus.Attach(events.NewWebhookNotifier(cfg.WebhookURL))
		log.Println("[signaltrader] webhook notifier attached")
	}

	var rdb *goredis.Client
	pub, err := events.NewRedisPublisher(events.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		log.Printf("[signaltrader] WARNING: redis unavailable: %v (continuing without redis)", err)
	} else {
		bus.Attach(pub)
		rdb = pub.Client()
		defer pub.Close()
	}
	health.StartLivenessChecker(ctx, rdb, store.DB(), 10*time.Second)

	// ---- WebSocket event hub ----
	hub := events.NewHub(500)
	bus.Attach(hub)
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", hub.HandleWS)
	wsSrv := &http.Server{Addr: cfg.EventsAddr, Handler: wsMux}
	go func() {
		log.Printf("[signaltrader] event hub listening on %s", cfg.EventsAddr)
		if err := wsSrv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[signaltrader] event hub error: %v", err)
		}
	}()

	// ---- Trading core ----
	paper := execution.New(store, cfg.PaperSlippageBps)
	orch := trading.New(store, store, reg, res, paper, bus, appLog)
	gate := trading.NewGate(store)

	rec := trading.NewReconciler(orch, cfg.ReconcileInterval, appLog)
	rec.OnSweep = func(res trading.SyncResult, took time.Duration, err error) {
		prom.SyncSweeps.Inc()
		prom.SyncDur.Observe(took.Seconds())
		prom.SyncUpdates.Add(float64(res.Updated))
		prom.SyncErrors.Add(float64(res.Errors))
		prom.ActiveTrades.Set(float64(res.Active))
		if err == nil {
			health.SetLastSync(time.Now())
		}
	}
	go func() {
		rec.Run(ctx)
	}()

	// ---- Signal intake ----
	if rdb != nil {
		in := signals.NewIngest(rdb, signals.DefaultChannel,
			signalHandler(reg, store, gate, orch, prom, appLog))
		go func() {
			if err := in.Run(ctx); err != nil {
				log.Printf("[signaltrader] signal intake stopped: %v", err)
			}
		}()
	} else {
		log.Println("[signaltrader] WARNING: signal intake disabled (no redis)")
	}

	log.Println("[signaltrader] ready")
	<-ctx.Done()
	log.Println("[signaltrader] shutdown signal received, cleaning up...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	metricsSrv.Stop(shutdownCtx)
	wsSrv.Shutdown(shutdownCtx)

	log.Println("[signaltrader] shutdown complete.")
}

// restoreSessions logs every active broker config back in from its
// stored tokens. A failed restore is not fatal; the operator re-logs
// through normal channels.
func restoreSessions(ctx context.Context, reg *broker.Registry, store *sqlitestore.Store, health *metrics.HealthStatus, prom *metrics.Metrics) {
	cfgs, err := store.ListBrokerConfigs(ctx)
	if err != nil {
		log.Printf("[signaltrader] list broker configs: %v", err)
		return
	}
	for _, bc := range cfgs {
		if !bc.Active {
			continue
		}
		b, err := reg.Create(bc.Broker, true)
		if err != nil {
			log.Printf("[signaltrader] unknown broker %q in config store", bc.Broker)
			continue
		}
		lctx, lcancel := context.WithTimeout(ctx, 30*time.Second)
		err = b.Login(lctx, bc)
		lcancel()
		if err != nil {
			log.Printf("[signaltrader] %s session restore failed: %v", bc.Broker, err)
			continue
		}
		health.SetBrokerSession(bc.Broker, true)
		prom.BrokerSession.WithLabelValues(bc.Broker).Set(1)
		log.Printf("[signaltrader] %s session restored (client %s)", bc.Broker, b.ClientID())
	}
}

// signalHandler runs each incoming signal through the gate and, when
// allowed, through the orchestrator.
func signalHandler(reg *broker.Registry, store *sqlitestore.Store, gate *trading.Gate, orch *trading.Orchestrator, prom *metrics.Metrics, appLog *slog.Logger) signals.Handler {
	return func(ctx context.Context, sig model.Signal) {
		settings, err := store.GetSettings(ctx)
		if err != nil {
			appLog.Error("read settings", "error", err)
			return
		}
		b, _ := reg.GetActive(ctx, store)

		d := gate.Evaluate(ctx, sig, settings, b)
		if !d.Allowed {
			prom.GateDecisions.WithLabelValues("blocked").Inc()
			prom.GateBlocks.WithLabelValues(blockLabel(d)).Inc()
			appLog.Warn("signal blocked", "symbol", sig.Symbol, "reason", d.Reason)
			return
		}
		prom.GateDecisions.WithLabelValues("allowed").Inc()

		start := time.Now()
		var t *model.Trade
		if sig.EntryPrice > 0 && sig.TargetPrice > 0 && sig.StopLoss > 0 {
			t, err = orch.ExecuteBracket(ctx, sig)
		} else {
			t, err = orch.Execute(ctx, sig, d.OrderType)
		}
		prom.OrderPlaceDur.Observe(time.Since(start).Seconds())
		if err != nil {
			appLog.Error("trade execution", "symbol", sig.Symbol, "error", err)
			return
		}
		prom.TradesPlaced.WithLabelValues(t.Broker, strconv.FormatBool(t.Paper)).Inc()
		prom.TradesByStatus.WithLabelValues(string(t.Status)).Inc()
	}
}

// blockLabel collapses a gate refusal into a low-cardinality metric
// label.
func blockLabel(d trading.Decision) string {
	switch {
	case errors.Is(d.Err, trading.ErrDailyLimitReached):
		return "daily_limit"
	case errors.Is(d.Err, trading.ErrPriceDeviation):
		return "price_deviation"
	case d.Reason == "Auto-trade is disabled":
		return "disabled"
	case strings.Contains(d.Reason, "approval"):
		return "manual_approval"
	case strings.Contains(d.Reason, "No active broker"):
		return "no_broker"
	case strings.Contains(d.Reason, "logged in"):
		return "not_logged_in"
	case strings.Contains(d.Reason, "verify"):
		return "unverified_instrument"
	case strings.Contains(d.Reason, "live price"):
		return "no_ltp"
	case strings.Contains(d.Reason, "symbol"), strings.Contains(d.Reason, "action"):
		return "incomplete_signal"
	default:
		return "other"
	}
}

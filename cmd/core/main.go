package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/beliefcore/core/internal/audit"
	"github.com/beliefcore/core/internal/belief"
	"github.com/beliefcore/core/internal/calibration"
	"github.com/beliefcore/core/internal/classify"
	"github.com/beliefcore/core/internal/config"
	"github.com/beliefcore/core/internal/crypto"
	"github.com/beliefcore/core/internal/decision"
	"github.com/beliefcore/core/internal/domain"
	"github.com/beliefcore/core/internal/execution"
	"github.com/beliefcore/core/internal/feeds"
	"github.com/beliefcore/core/internal/logging"
	"github.com/beliefcore/core/internal/memory"
	"github.com/beliefcore/core/internal/middleware"
	"github.com/beliefcore/core/internal/paper"
	"github.com/beliefcore/core/internal/polymarket"
	"github.com/beliefcore/core/internal/ports"
	"github.com/beliefcore/core/internal/safety"
	"github.com/beliefcore/core/internal/scheduler"
	"github.com/beliefcore/core/internal/bus"
	"github.com/beliefcore/core/internal/storage"
)

// realClock satisfies ports.Clock over the wall clock.
type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "application failed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Sentry.DSN != "" {
		if err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Environment}); err != nil {
			fmt.Fprintf(os.Stderr, "failed to initialize sentry: %v\n", err)
		}
		defer sentry.Flush(2 * time.Second)
	}

	stdLogger := logging.NewStandardLogger(cfg.LogLevel, cfg.Environment)

	positionStore, calibStore, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}

	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			stdLogger.WithOperation("redis_connect").Warn(fmt.Sprintf("continuing without safety ledger: %v", err))
			redisClient = nil
		}
	}
	var safetyLedger *safety.Ledger
	if redisClient != nil {
		safetyLedger = safety.New(redisClient, safety.Config{
			MaxPositionSizeUSD:   decimal.NewFromFloat(cfg.Safety.MaxPositionSizeUSD),
			DailyLossLimitUSD:    decimal.NewFromFloat(cfg.Safety.DailyLossLimitUSD),
			MaxOpenPositions:     cfg.Safety.MaxOpenPositions,
			ConsecutiveLossPause: cfg.Safety.ConsecutiveLossPause,
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	paperTracker, err := paper.New(ctx, positionStore, paper.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to recover paper positions: %w", err)
	}
	calibMonitor, err := calibration.New(ctx, calibStore, calibration.DefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to recover calibration window: %w", err)
	}

	memMonitor, err := memory.New(memory.Config{
		CriticalMB:  cfg.Memory.CriticalMB,
		EmergencyMB: cfg.Memory.EmergencyMB,
		Interval:    30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to construct memory monitor: %w", err)
	}

	gammaClient := polymarket.NewClient()
	var clobOpts []polymarket.CLOBOption
	if cfg.Polymarket.APIKey != "" {
		clobOpts = append(clobOpts, polymarket.WithCLOBCredentials(cfg.Polymarket.APIKey, cfg.Polymarket.APISecret))
	}
	clobClient := polymarket.NewCLOBClient(clobOpts...)
	marketSource := polymarket.NewMarketAdapter(gammaClient)

	var orderConnector ports.OrderConnector
	tradingMode := strings.ToLower(strings.TrimSpace(cfg.Trading.Mode))
	if tradingMode == "live" {
		orderConnector = polymarket.NewOrderAdapter(clobClient)
		stdLogger.WithOperation("startup").Warn("trading.mode=live: orders will be submitted to the real Polymarket CLOB")
	} else {
		orderConnector = execution.NewSimulatedConnector()
	}

	signalSource := feeds.New(nil, nil)

	classifier := classify.New(classify.DefaultLexicon())
	beliefEngine := belief.New(belief.DefaultConfig())

	decisionCfg := decision.DefaultConfig()
	decisionCfg.MinConfidence = cfg.Trading.MinConfidence
	decisionCfg.MaxWidth = cfg.Trading.MaxWidth
	decisionCfg.DefaultMinLiquidity = cfg.Trading.MinLiquidity
	decisionCfg.MinEdgeByCategory = minEdgeByCategory(cfg.Trading.MinEdgeByCategory)
	decisionEngine := decision.New(decisionCfg, defaultSizingPolicy(safetyLedger))

	execLayer := execution.New(orderConnector, paperTracker)

	auditSink, err := audit.NewFileSink(cfg.Audit.FilePath)
	if err != nil {
		return fmt.Errorf("failed to open audit sink: %w", err)
	}
	defer auditSink.Close()

	notificationSink := audit.NewNotificationSink(audit.DefaultNotificationConfig(), func(ctx context.Context, event ports.AuditEvent) error {
		stdLogger.WithOperation("notify").Info(fmt.Sprintf("%s: %s", event.Event, event.Detail))
		return nil
	})

	eventBus := bus.New()

	schedCfg := scheduler.DefaultConfig()
	schedCfg.MaxMarkets = cfg.Trading.MaxMarkets
	schedCfg.PollInterval = time.Duration(cfg.Trading.PollIntervalMS) * time.Millisecond
	schedCfg.CleanupInterval = time.Duration(cfg.Trading.CleanupIntervalMS) * time.Millisecond
	schedCfg.ResolutionCheckInterval = time.Duration(cfg.Trading.ResolutionCheckMS) * time.Millisecond
	schedCfg.VirtualCapitalUSD = cfg.Trading.VirtualCapitalUSD

	sched := scheduler.New(
		schedCfg,
		marketSource,
		signalSource,
		classifier,
		beliefEngine,
		decisionEngine,
		execLayer,
		paperTracker,
		calibMonitor,
		safetyLedger,
		memMonitor,
		auditSink,
		notificationSink,
		eventBus,
		realClock{},
		stdLogger,
	)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}
	defer sched.Stop()

	hasher := crypto.NewOperatorIdentityHasher()
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Sentry.DSN != "" {
		router.Use(middleware.TelemetryMiddleware())
	}
	registerControlRoutes(router, sched, cfg.Auth.JWTSecret, hasher)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       15 * time.Second,
	}

	go func() {
		stdLogger.LogStartup("beliefcore-core", "1.0.0", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			stdLogger.WithError(err).Error("control surface server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	stdLogger.LogShutdown("beliefcore-core", "signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		stdLogger.WithError(err).Error("control surface server forced to shutdown")
	}

	return nil
}

// minEdgeByCategory converts the configured string-keyed table into the
// domain.Category-keyed table the decision engine consumes, falling back to
// the package default (via a nil map) when config carried none.
func minEdgeByCategory(configured map[string]float64) map[domain.Category]float64 {
	if len(configured) == 0 {
		return nil
	}
	out := make(map[domain.Category]float64, len(configured))
	for category, minEdge := range configured {
		out[domain.Category(category)] = minEdge
	}
	return out
}

func openStores(cfg *config.Config) (ports.PositionStore, ports.CalibrationStore, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Database.Driver))
	switch driver {
	case "postgres":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		store, err := storage.NewPostgresStore(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		store, err := storage.NewSQLiteStore(cfg.Database.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}
}

// defaultSizingPolicy implements the pure §4.4 sizing function: a linear
// edge/confidence scalar of capital, capped and throttled by the safety
// ledger when one is wired.
func defaultSizingPolicy(ledger *safety.Ledger) decision.SizingPolicy {
	return func(edge, confidence, capitalUSD float64) float64 {
		fraction := (edge / 100) * (confidence / 100)
		if fraction > 0.05 {
			fraction = 0.05
		}
		requested := decimal.NewFromFloat(capitalUSD * fraction)
		if ledger == nil {
			f, _ := requested.Float64()
			return f
		}
		sized, err := ledger.ThrottledSize(context.Background(), requested)
		if err != nil {
			f, _ := requested.Float64()
			return f
		}
		f, _ := sized.Float64()
		return f
	}
}

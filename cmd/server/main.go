package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kevin07696/payment-engine/internal/adapters/epx"
	"github.com/kevin07696/payment-engine/internal/adapters/kafka"
	"github.com/kevin07696/payment-engine/internal/config"
	"github.com/kevin07696/payment-engine/internal/domain"
	"github.com/kevin07696/payment-engine/internal/domain/ports"
	checkoutHandler "github.com/kevin07696/payment-engine/internal/handlers/checkout"
	cronHandler "github.com/kevin07696/payment-engine/internal/handlers/cron"
	paymentService "github.com/kevin07696/payment-engine/internal/services/payment"
	preorderService "github.com/kevin07696/payment-engine/internal/services/preorder"
	subscriptionService "github.com/kevin07696/payment-engine/internal/services/subscription"
	"github.com/kevin07696/payment-engine/internal/services/tokens"
	"github.com/kevin07696/payment-engine/pkg/middleware"
	"github.com/kevin07696/payment-engine/pkg/observability"
	"github.com/kevin07696/payment-engine/pkg/security"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n\n%s\n", err, config.Usage())
		os.Exit(1)
	}

	logger := initLogger(cfg.Logger)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("Payment engine stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("Starting payment engine",
		zap.String("storage_driver", cfg.Storage.Driver),
		zap.String("cache_driver", cfg.Storage.CacheDriver),
		zap.String("secret_backend", cfg.Secrets.Backend),
	)

	settings, err := config.LoadGatewaySettings(cfg.Gateway.SettingsFile)
	if err != nil {
		return err
	}

	health := observability.NewHealthChecker()

	st, err := initStores(ctx, cfg, health, logger)
	if err != nil {
		return err
	}
	defer st.close()

	cache, err := initTokenCache(cfg, health, logger)
	if err != nil {
		return err
	}

	secrets, err := initSecretManager(ctx, cfg.Secrets, logger)
	if err != nil {
		return err
	}

	driver, err := initDriver(ctx, cfg.EPX, settings, secrets, logger)
	if err != nil {
		return err
	}

	var publisher ports.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafka.NewSyncProducer(cfg.Kafka.Brokers)
		if err != nil {
			return err
		}
		kafkaPublisher := kafka.NewPublisher(producer, cfg.Kafka.Topic, logger)
		defer func() { _ = kafkaPublisher.Close() }()
		publisher = kafkaPublisher
	} else {
		logger.Warn("KAFKA_BROKERS not set, payment events will not be published")
	}

	serviceLogger := security.NewZapLoggerAdapter(logger)

	synchronizer := tokens.NewSynchronizer(
		driver, settings, st.tokens, st.customers, cache, st.orders,
		serviceLogger.Named("tokens"),
		tokens.WithLegacyStore(st.legacy),
	)
	engine := paymentService.NewEngine(driver, settings, st.orders, synchronizer, publisher, serviceLogger.Named("engine"))
	st.onStatusChange(engine.HandleStatusTransition)

	subscriptions := subscriptionService.NewService(engine, st.orders, st.subscriptions, serviceLogger.Named("subscriptions"))
	preorders := preorderService.NewService(engine, st.orders, serviceLogger.Named("preorders"))

	mux := http.NewServeMux()
	checkoutHandler.NewHandler(st.orders, subscriptions, preorders, engine, subscriptions, logger).RegisterRoutes(mux)
	mux.HandleFunc("/cron/process-renewals", cronHandler.NewRenewalHandler(subscriptions, logger, cfg.Cron.Secret).ProcessRenewals)
	mux.HandleFunc("/cron/process-releases", cronHandler.NewReleaseHandler(preorders, logger, cfg.Cron.Secret).ProcessReleases)
	if cfg.Cron.Secret == "" {
		logger.Warn("CRON_SECRET not set, cron endpoints will reject every request")
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst, logger)
	defer rateLimiter.Shutdown()

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           middleware.SecurityHeaders(cfg.Logger.Development)(rateLimiter.Middleware(mux)),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
	}

	metricsServer := observability.StartMetricsServer(strconv.Itoa(cfg.Server.MetricsPort), health, logger)

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", zap.String("address", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutting down servers...")
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}
	if err := observability.ShutdownMetricsServer(metricsServer); err != nil {
		logger.Error("Metrics server shutdown error", zap.Error(err))
	}

	logger.Info("Servers stopped")
	return nil
}

// initLogger initializes the logger
func initLogger(cfg config.LoggerConfig) *zap.Logger {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}

// initDriver loads merchant credentials and builds the EPX driver.
func initDriver(ctx context.Context, cfg config.EPXConfig, settings *domain.GatewaySettings, secrets ports.SecretManager, logger *zap.Logger) (*epx.Driver, error) {
	creds, err := epx.LoadCredentials(ctx, secrets, cfg.CredentialsPath)
	if err != nil {
		return nil, err
	}

	epxCfg := epx.DefaultConfig(settings.Environment)
	if cfg.BaseURL != "" {
		epxCfg.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		epxCfg.Timeout = cfg.Timeout
	}
	if cfg.RateLimit > 0 {
		epxCfg.RateLimit = cfg.RateLimit
	}
	if cfg.Burst > 0 {
		epxCfg.Burst = cfg.Burst
	}

	logger.Info("EPX driver configured",
		zap.String("environment", settings.Environment),
		zap.String("base_url", epxCfg.BaseURL),
		zap.Float64("rate_limit", epxCfg.RateLimit),
	)
	return epx.NewDriver(epxCfg, creds, logger), nil
}

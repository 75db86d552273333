package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"reseller-ledger/config"
	"reseller-ledger/internal/adapter/gateway/wompi"
	httpHandler "reseller-ledger/internal/adapter/http/handler"
	"reseller-ledger/internal/adapter/http/middleware"
	redisStorage "reseller-ledger/internal/adapter/storage/redis"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/metrics"
	"reseller-ledger/internal/service"
	"reseller-ledger/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", "", "path to the config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)
	gin.SetMode(cfg.Server.Mode)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Str("storage", cfg.Storage.Driver).
		Int("port", cfg.Server.Port).
		Msg("Starting reseller ledger")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repos, err := openStorage(ctx, cfg, logger.Component(log, "storage"))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer repos.close()
	healthCheckers := []ports.HealthChecker{repos.health}

	// Redis is optional: without it webhook dedup and withdrawal idempotency
	// fall back to the database and rate limiting is off.
	var (
		eventGuard     ports.WebhookEventGuard
		idempCache     ports.IdempotencyCache
		rateLimitStore *redisStorage.RateLimitStore
	)
	if cfg.Redis.Enabled {
		rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
		eventGuard = redisStorage.NewWebhookEventGuard(rdb)
		idempCache = redisStorage.NewIdempotencyCache(rdb, cfg.Idempotency.TTL)
		rateLimitStore = redisStorage.NewRateLimitStore(rdb)
		healthCheckers = append(healthCheckers, redisStorage.Probe(rdb))
	} else {
		log.Warn().Msg("Redis disabled, running without rate limits")
	}

	var gateway ports.PaymentGateway
	if cfg.Wompi.PrivateKey != "" {
		gateway = wompi.NewClient(cfg.Wompi, &http.Client{Timeout: cfg.Wompi.Timeout}, logger.Component(log, "wompi"))
	} else {
		log.Warn().Msg("Wompi keys not configured, payment links and sync disabled")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	ledgerMetrics := metrics.NewLedger(registry)

	encSvc, err := service.NewAESEncryptionService(cfg.AES.Key)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize encryption service")
	}
	sigSvc := service.NewHMACSignatureService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	calc, err := service.NewCommissionCalculator(cfg.Commission.Policy())
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid commission policy")
	}
	minWithdrawal := cfg.Wallet.MinimumWithdrawalAmount()

	sales := service.NewSaleProcessor(
		calc, repos.wallets, repos.movements, repos.sellers, repos.products, repos.orders,
		repos.transactor, minWithdrawal, ledgerMetrics, logger.Component(log, "sales"),
	)
	settlement := service.NewSettlementEngine(
		sales, repos.orders, repos.payments, repos.wallets, repos.movements,
		repos.transactor, ledgerMetrics, logger.Component(log, "settlement"),
	)
	withdrawals := service.NewWithdrawalProcessor(
		repos.wallets, repos.movements, idempCache, encSvc, repos.transactor,
		cfg.Idempotency.TTL, ledgerMetrics, logger.Component(log, "withdrawals"),
	)
	reconciler := service.NewWebhookReconciler(
		service.WebhookConfig{
			EventsSecret:  cfg.Wompi.EventsSecret,
			SkipSignature: cfg.Wompi.SkipSignature,
			EventTTL:      cfg.Webhook.EventTTL,
		},
		sigSvc, eventGuard, gateway, sales, settlement,
		repos.orders, repos.payments, repos.events, repos.transactor,
		ledgerMetrics, logger.Component(log, "webhooks"),
	)
	orders := service.NewOrderService(
		calc, repos.products, repos.orders, repos.payments, gateway, repos.transactor,
		service.PaymentLinkConfig{Currency: cfg.Wompi.Currency, RedirectURL: cfg.Wompi.RedirectURL},
		logger.Component(log, "orders"),
	)
	wallets := service.NewWalletService(repos.wallets, repos.movements, repos.sellers, encSvc, repos.transactor, minWithdrawal)
	auditSvc := service.NewAuditService(repos.audit, logger.Component(log, "audit"))

	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		OrderSvc:       orders,
		SettlementSvc:  settlement,
		WithdrawalSvc:  withdrawals,
		WebhookSvc:     reconciler,
		WalletSvc:      wallets,
		TokenSvc:       tokenSvc,
		AuditSvc:       auditSvc,
		RateLimitStore: rateLimitStore,
		RateLimitRules: middleware.RulesFromConfig(cfg.RateLimit),
		Gatherer:       registry,
		HealthCheckers: healthCheckers,
		Logger:         logger.Component(log, "http"),
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server stopped with error")
		return
	}
	log.Info().Msg("Server exited")
}

package handler

import (
	"reseller-ledger/internal/adapter/http/middleware"
	redisStore "reseller-ledger/internal/adapter/storage/redis"
	"reseller-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

const maxBodyBytes = 1 << 20

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	OrderSvc       ports.OrderService
	SettlementSvc  ports.SettlementService
	WithdrawalSvc  ports.WithdrawalService
	WebhookSvc     ports.WebhookService
	WalletSvc      ports.WalletService
	TokenSvc       ports.TokenService
	AuditSvc       ports.AuditService         // nil = audit logging disabled
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	RateLimitRules map[string]middleware.RateLimitRule
	Gatherer       prometheus.Gatherer // nil = no /metrics
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	if deps.AuditSvc != nil {
		r.Use(middleware.AuditLog(deps.AuditSvc))
	}

	r.GET("/health", HealthCheck(deps.Logger, deps.HealthCheckers...))
	if deps.Gatherer != nil {
		r.GET("/metrics", Metrics(deps.Gatherer))
	}

	rl := func(group string) gin.HandlerFunc {
		rule, ok := deps.RateLimitRules[group]
		if deps.RateLimitStore == nil || !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/api/v1")

	// --- Gateway callbacks (signed body, no JWT) ---
	webhookHandler := NewWebhookHandler(deps.WebhookSvc)
	v1.POST("/webhooks/wompi", rl("webhooks"), webhookHandler.Receive)

	// --- Seller routes ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)
	walletHandler := NewWalletHandler(deps.WalletSvc, deps.WithdrawalSvc)
	orderHandler := NewOrderHandler(deps.OrderSvc, deps.SettlementSvc, deps.WebhookSvc)

	v1.GET("/seller", jwtAuth, rl("wallet_read"), walletHandler.GetSeller)

	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.GET("", rl("wallet_read"), walletHandler.GetWallet)
		wallet.GET("/movements", rl("wallet_read"), walletHandler.ListMovements)
		wallet.GET("/summary", rl("wallet_read"), walletHandler.GetSummary)
		wallet.PUT("/settings", rl("settings"), walletHandler.UpdateSettings)
		wallet.POST("/withdrawals", rl("withdrawals"), walletHandler.RequestWithdrawal)
	}

	orders := v1.Group("/orders", jwtAuth)
	{
		orders.POST("", rl("orders"), orderHandler.Create)
		orders.GET("/:id", rl("wallet_read"), orderHandler.Get)
		orders.POST("/:id/deliver", rl("orders"), orderHandler.Deliver)
		orders.PATCH("/:id/status", rl("orders"), orderHandler.UpdateStatus)
		orders.POST("/:id/sync", rl("orders"), orderHandler.Sync)
	}

	// --- Withdrawal review ---
	adminHandler := NewAdminHandler(deps.WithdrawalSvc)
	admin := v1.Group("/admin", jwtAuth, middleware.RequireRole(ports.RoleAdmin))
	{
		admin.POST("/withdrawals/:id/approve", rl("admin"), adminHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", rl("admin"), adminHandler.RejectWithdrawal)
	}

	return r
}

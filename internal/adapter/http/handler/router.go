package handler

import (
	"paylink-gateway/internal/adapter/http/middleware"
	redisStore "paylink-gateway/internal/adapter/storage/redis"
	"paylink-gateway/internal/core/ports"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	MerchantSvc    ports.MerchantService
	LinkSvc        ports.LinkService
	OutboxRepo     ports.WebhookOutboxRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit
	r.Use(cors.Default())                  // permissive: links are shared cross-origin

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))
	r.GET("/docs", Docs)

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	auth := middleware.APIKeyAuth(deps.MerchantSvc, deps.Logger)
	merchantHandler := NewMerchantHandler(deps.MerchantSvc)
	linkHandler := NewLinkHandler(deps.LinkSvc, deps.OutboxRepo)

	// --- Public routes ---
	r.POST("/generate-api-key", rl("keys"), merchantHandler.GenerateKey)
	r.GET("/payment/:id", rl("links_read"), linkHandler.GetStatus)
	r.POST("/verify-payment", rl("verify"), linkHandler.Verify)

	// --- API-key authenticated routes ---
	r.POST("/rotate-api-key", auth, rl("keys"), merchantHandler.RotateKey)
	r.POST("/create-payment-link", auth, rl("links_create"), linkHandler.Create)
	r.GET("/payment-links", auth, rl("links_read"), linkHandler.List)
	r.POST("/cancel/:id", auth, rl("links_create"), linkHandler.Cancel)
	r.GET("/webhook-deliveries/dead", auth, rl("links_read"), linkHandler.ListDeadDeliveries)

	return r
}

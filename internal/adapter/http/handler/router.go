package handler

import (
	"nfc-card-ledger/internal/adapter/http/dto"
	"nfc-card-ledger/internal/adapter/http/middleware"
	"nfc-card-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	PaymentSvc     ports.PaymentService
	TapSvc         ports.TapService
	ReportingSvc   ports.ReportingService
	TokenSvc       ports.TokenService          // nil = operator auth disabled
	RateLimitStore middleware.RateLimitStore   // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	StoreMode      string
	Presenter      dto.Presenter
	Mode           string // gin mode: debug, release, test
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Mode != "" {
		gin.SetMode(deps.Mode)
	}
	r := gin.New()

	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20))

	r.GET("/health", HealthCheck(deps.StoreMode, deps.HealthCheckers...))

	rules := middleware.DefaultRateLimitRules()
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rules[group], deps.Logger)
	}

	v1 := r.Group("/api/v1",
		middleware.JWTAuth(deps.TokenSvc, deps.Logger),
		middleware.AuditLog(deps.Logger),
	)

	paymentHandler := NewPaymentHandler(deps.PaymentSvc, deps.Presenter)
	v1.POST("/payments", rl("payments"), paymentHandler.Pay)
	v1.POST("/topups", rl("topups"), paymentHandler.TopUp)

	tapHandler := NewTapHandler(deps.TapSvc, deps.Presenter)
	v1.POST("/taps", rl("taps"), tapHandler.HandleTap)

	cardHandler := NewCardHandler(deps.PaymentSvc, deps.ReportingSvc, deps.Presenter)
	cards := v1.Group("/cards", rl("cards"))
	{
		cards.POST("", cardHandler.Register)
		cards.GET("/:tag_id", cardHandler.Get)
		cards.PATCH("/:tag_id/status", cardHandler.SetStatus)
		cards.GET("/:tag_id/transactions", cardHandler.History)
	}

	reportHandler := NewReportHandler(deps.ReportingSvc, deps.Presenter)
	shops := v1.Group("/shops", rl("reports"))
	{
		shops.GET("/:shop_id/transactions", reportHandler.ShopTransactions)
		shops.GET("/:shop_id/stats", reportHandler.ShopStats)
	}

	return r
}

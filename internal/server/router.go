package server

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"trader-core/internal/handler"
	"trader-core/pkg/monitor"
)

// Handlers 路由需要的全部业务 handler
type Handlers struct {
	Wallet *handler.WalletHandler
	Trade  *handler.TradeHandler
	Order  *handler.OrderHandler
	Mirror *handler.MirrorHandler
}

// NewHTTPRouter 初始化并返回一个 Gin Engine
func NewHTTPRouter(h *Handlers) *gin.Engine {
	// 0. 初始化监控指标
	monitor.Init()

	// 1. 创建 Engine (使用默认中间件: Logger, Recovery)
	r := gin.Default()

	// 2. 注册通用中间件
	r.Use(monitor.PrometheusMiddleware())

	// 3. 注册基础路由
	r.GET("/health", handler.HealthCheck)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// 4. 注册 API 路由组
	api := r.Group("/api/v1")
	{
		wallet := api.Group("/wallet")
		{
			wallet.POST("", h.Wallet.Create)
			wallet.POST("/import", h.Wallet.Import)
			wallet.POST("/unlock", h.Wallet.Unlock)
			wallet.POST("/quick-unlock", h.Wallet.QuickUnlock)
			wallet.POST("/2fa/enable", h.Wallet.EnableTwoFactor)
			wallet.POST("/lock", h.Wallet.Lock)
			wallet.GET("/status", h.Wallet.Status)
		}

		trade := api.Group("/trade")
		{
			trade.POST("/quote", h.Trade.Quote)
			trade.POST("/execute", h.Trade.Execute)
		}

		orders := api.Group("/orders")
		{
			orders.POST("", h.Order.Create)
			orders.GET("", h.Order.List)
			orders.DELETE("/:order_id", h.Order.Cancel)
		}

		mirror := api.Group("/mirror")
		{
			mirror.POST("", h.Mirror.Configure)
			mirror.GET("", h.Mirror.Get)
			mirror.DELETE("", h.Mirror.Delete)
			mirror.POST("/pause", h.Mirror.Pause)
			mirror.POST("/resume", h.Mirror.Resume)
		}
	}

	return r
}

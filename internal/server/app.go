package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"trader-core/pkg/logger"
)

type Config struct {
	HttpPort string
}

// App 持有 HTTP 服务和需要随进程优雅退出的后台组件
type App struct {
	httpServer *http.Server
	background []Stopper
}

// Stopper 随进程一起关停的后台组件 (跟单观察、条件单盯盘)
type Stopper interface {
	Shutdown()
}

// StopFunc 函数适配成 Stopper
type StopFunc func()

func (f StopFunc) Shutdown() { f() }

func New(cfg Config, httpHandler *gin.Engine, background ...Stopper) *App {
	return &App{
		httpServer: &http.Server{
			Addr:    ":" + cfg.HttpPort,
			Handler: httpHandler,
		},
		background: background,
	}
}

// Run 启动服务并阻塞，直到收到关闭信号
func (a *App) Run() {
	// 1. Start HTTP
	go func() {
		logger.Info("Starting HTTP Server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP Server failure", zap.Error(err))
		}
	}()

	// 2. Signal Handling (Blocking)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("⚠️  Shutting down server...")

	// 3. Graceful Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP Server forced to shutdown", zap.Error(err))
	}

	// 后台组件按注册顺序关停
	for _, s := range a.background {
		s.Shutdown()
	}
	logger.Info("Server exited properly")
}

package main

import (
	"context"
	"fmt"
	"time"

	"trader-core/internal/aggregator"
	"trader-core/internal/chain"
	"trader-core/internal/engine"
	"trader-core/internal/handler"
	"trader-core/internal/mirror"
	"trader-core/internal/model"
	"trader-core/internal/server"
	"trader-core/internal/service/mq"
	"trader-core/internal/vault"
	"trader-core/internal/watch"

	"trader-core/pkg/cache"
	"trader-core/pkg/config"
	"trader-core/pkg/database"
	"trader-core/pkg/logger"
	"trader-core/pkg/utils/lock"

	"go.uber.org/zap"

	_ "trader-core/docs/swagger"
)

// @title Trader Core API
// @version 1.0
// @description Chat-bot trading core: key vault, trade engine, copy trading
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8080
// @BasePath /api/v1
func main() {
	// 0. 初始化 Config
	config.Init()

	// 1. 初始化 Logger
	logger.Init(config.Global.App.Env)
	defer logger.Sync()

	// 2. 构造 DSN
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=Asia/Shanghai",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)

	// 3. 连接数据库
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 4. 连接 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 5. 执行数据库迁移 (Auto Migrate)
	if config.Global.App.Env == "development" {
		logger.Info("开发环境: 尝试自动迁移 Schema (GORM AutoMigrate)...")
		if err := db.AutoMigrate(model.AllModels()...); err != nil {
			logger.Fatal("数据库自动迁移失败", zap.Error(err))
		}
		logger.Info("数据库自动迁移完成 (Dev Mode)")
	} else {
		logger.Info("生产环境: 跳过 AutoMigrate，请使用 migrate 工具管理 Schema")
	}

	// 6. 初始化消息队列
	var producer mq.Producer
	if config.Global.Redis.MQType == "kafka" {
		logger.Info("使用 Kafka 作为消息队列...")
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
	} else {
		logger.Info("使用 Redis Streams 作为消息队列...")
		producer = mq.NewRedisProducer(rdb)
	}

	// 7. 链上后端 (Token 元数据走两级缓存: 本地 + Redis)
	tokenCache := cache.NewMultiLevelCache(
		cache.NewMemoryCache(10*time.Minute, 30*time.Minute),
		cache.NewRedisCache(rdb),
	)
	backend, err := chain.NewEthBackend(&config.Global.Chain, config.Global.Trade.RouterAddr, tokenCache)
	if err != nil {
		logger.Fatal("链上节点连接失败", zap.Error(err))
	}

	// 8. 聚合器报价源
	source := aggregator.NewHTTPSource(&config.Global.Aggregator, config.Global.Chain.ChainID, config.Global.Chain.WETHAddr)

	// 9. 密钥保险库
	vlt := vault.New(vault.NewGormStore(db), &config.Global.Vault)

	// 10. 交易引擎
	eng := engine.New(
		engine.VaultSigners{Vault: vlt},
		backend,
		source,
		engine.NewGormStore(db),
		producer,
		&config.Global.Trade,
	)

	// 11. 跟单监控，恢复 DB 里所有 active 配置
	mon := mirror.New(mirror.NewGormStore(db), backend, source, eng, producer, config.Global.Mirror.PollInterval)
	if err := mon.ResumeAll(context.Background()); err != nil {
		logger.Error("恢复跟单观察协程失败", zap.Error(err))
	}

	// 12. 条件单盯盘 (Redis 分布式锁保证多实例单节点评估)
	watcher := watch.New(engine.NewGormStore(db), eng, source, lock.NewRedisLock(rdb), producer)
	if err := watcher.Start(); err != nil {
		logger.Fatal("条件单盯盘启动失败", zap.Error(err))
	}

	// 13. HTTP Router
	r := server.NewHTTPRouter(&server.Handlers{
		Wallet: handler.NewWalletHandler(vlt),
		Trade:  handler.NewTradeHandler(eng),
		Order:  handler.NewOrderHandler(eng),
		Mirror: handler.NewMirrorHandler(mon, mirror.NewGormStore(db)),
	})

	// 14. 启动应用 (阻塞到收到退出信号)
	app := server.New(
		server.Config{HttpPort: config.Global.App.HttpPort},
		r,
		server.StopFunc(mon.Shutdown),
		server.StopFunc(watcher.Stop),
	)
	app.Run()

	// 15. 退出后资源清理
	logger.Info("正在关闭数据库连接...")
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
	rdb.Close()
	logger.Info("系统已退出")
}

package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App        AppConfig        `mapstructure:"app"`
	DB         DBConfig         `mapstructure:"db"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Chain      ChainConfig      `mapstructure:"chain"`
	Aggregator AggregatorConfig `mapstructure:"aggregator"`
	Trade      TradeConfig      `mapstructure:"trade"`
	Vault      VaultConfig      `mapstructure:"vault"`
	Mirror     MirrorConfig     `mapstructure:"mirror"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	MQType   string `mapstructure:"mq_type"` // "redis" or "kafka"
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// ChainConfig 链上节点配置
type ChainConfig struct {
	RpcUrl     string        `mapstructure:"rpc_url"`
	ChainID    int64         `mapstructure:"chain_id"`
	WETHAddr   string        `mapstructure:"weth_addr"`
	RpcTimeout time.Duration `mapstructure:"rpc_timeout"`
}

// AggregatorConfig 外部聚合器 (报价/路由) 配置
type AggregatorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// TradeConfig 交易引擎配置
type TradeConfig struct {
	FeeRateBps          int64         `mapstructure:"fee_rate_bps"`          // 协议费率 (万分比)
	FeeRecipient        string        `mapstructure:"fee_recipient"`         // 协议费接收地址
	RouterAddr          string        `mapstructure:"router_addr"`           // 路由合约地址
	QuoteTTL            time.Duration `mapstructure:"quote_ttl"`             // 报价有效期
	MEVProtect          bool          `mapstructure:"mev_protect"`           // 大单拆分开关
	LargeOrderThreshold string        `mapstructure:"large_order_threshold"` // 拆单阈值 (Wei, 十进制字符串)
	SplitCount          int           `mapstructure:"split_count"`           // 拆单数量
	SplitMaxDelayMs     int           `mapstructure:"split_max_delay_ms"`    // 拆单腿之间的最大随机延迟
	TipEscalationBps    int64         `mapstructure:"tip_escalation_bps"`    // 每条腿的小费递增比例
}

// VaultConfig 密钥保险库配置
type VaultConfig struct {
	LockTimeout  time.Duration `mapstructure:"lock_timeout"`  // 会话滑动过期时间
	MaxAttempts  int           `mapstructure:"max_attempts"`  // 最大连续失败次数
	AttemptDecay time.Duration `mapstructure:"attempt_decay"` // 失败计数衰减周期 (0 = 永不衰减)
}

// MirrorConfig 跟单监控配置
type MirrorConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"` // 目标钱包轮询间隔
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")   // REQUIRED if the config file does not have the extension in the name
	viper.AddConfigPath(".")      // optionally look for config in the working directory
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; ignore error if desired
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			// Config file was found but another error was produced
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "trader")
	viper.SetDefault("db.password", "trader")
	viper.SetDefault("db.name", "trader_core")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.mq_type", "redis")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	// Base Mainnet 默认
	viper.SetDefault("chain.rpc_url", "https://mainnet.base.org")
	viper.SetDefault("chain.chain_id", 8453)
	viper.SetDefault("chain.weth_addr", "0x4200000000000000000000000000000000000006")
	viper.SetDefault("chain.rpc_timeout", "15s")

	viper.SetDefault("aggregator.base_url", "https://api.velora.xyz")
	viper.SetDefault("aggregator.timeout", "10s")

	viper.SetDefault("trade.fee_rate_bps", 50) // 0.5%
	viper.SetDefault("trade.quote_ttl", "20s")
	viper.SetDefault("trade.mev_protect", false)
	viper.SetDefault("trade.large_order_threshold", "1000000000000000000") // 1 ETH
	viper.SetDefault("trade.split_count", 4)
	viper.SetDefault("trade.split_max_delay_ms", 3000)
	viper.SetDefault("trade.tip_escalation_bps", 1500) // 每条腿 +15%

	viper.SetDefault("vault.lock_timeout", "15m")
	viper.SetDefault("vault.max_attempts", 5)
	viper.SetDefault("vault.attempt_decay", "0s") // 默认不自动衰减，需成功解锁或管理员重置

	viper.SetDefault("mirror.poll_interval", "15s")
}

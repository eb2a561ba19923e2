package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BusinessMetrics 定义业务监控指标
type BusinessMetrics struct {
	WalletCreatedTotal  prometheus.Counter
	UnlockFailedTotal   prometheus.Counter
	LockoutTotal        prometheus.Counter
	TradeExecutedTotal  *prometheus.CounterVec
	TradeFailedTotal    *prometheus.CounterVec
	SplitLegDuration    *prometheus.HistogramVec
	MirrorCopiedTotal   prometheus.Counter
	MirrorSkippedTotal  prometheus.Counter
	OrderTriggeredTotal *prometheus.CounterVec
}

// Global Metrics Instance
var Business *BusinessMetrics

// promauto 注册进默认 Registry，放在 init 里保证只注册一次
func init() {
	Business = &BusinessMetrics{
		WalletCreatedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trader_wallet_created_total",
			Help: "The total number of wallets created or imported",
		}),
		UnlockFailedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trader_unlock_failed_total",
			Help: "The total number of failed unlock attempts",
		}),
		LockoutTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trader_lockout_total",
			Help: "The total number of users hitting the failed-attempt lockout",
		}),
		TradeExecutedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trade_executed_total",
			Help: "The total number of executed trades",
		}, []string{"direction", "mode"}),
		TradeFailedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_trade_failed_total",
			Help: "The total number of failed trades",
		}, []string{"direction", "reason"}),
		SplitLegDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "trader_split_leg_duration_seconds",
			Help:    "Duration of individual split-order legs",
			Buckets: prometheus.DefBuckets,
		}, []string{"direction"}),
		MirrorCopiedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trader_mirror_copied_total",
			Help: "The total number of mirrored trades executed",
		}),
		MirrorSkippedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "trader_mirror_skipped_total",
			Help: "The total number of mirrored trades skipped by the slippage guard",
		}),
		OrderTriggeredTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "trader_order_triggered_total",
			Help: "The total number of conditional orders triggered",
		}, []string{"kind"}),
	}
}

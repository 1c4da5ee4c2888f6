package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// CatatUangMetrics 订阅与配额服务指标
type CatatUangMetrics struct {
	// 配额检查相关指标
	QuotaCheckTotal    *prometheus.CounterVec   // 配额检查总数（按计数器、结果）
	QuotaCheckDuration *prometheus.HistogramVec // 配额检查耗时

	// 配额消耗相关指标
	QuotaConsumeTotal  *prometheus.CounterVec // 配额消耗次数（按计数器、套餐）
	QuotaConsumeAmount *prometheus.CounterVec // 配额消耗数量（按计数器）
	QuotaResetTotal    prometheus.Counter     // 月度计数器重置次数

	// 回调相关指标
	WebhookTotal    *prometheus.CounterVec // 回调总数（按结果）
	WebhookDuration prometheus.Histogram   // 回调处理耗时

	// 套餐变更相关指标
	PlanChangeTotal *prometheus.CounterVec // 套餐变更次数（按来源、目标套餐）

	// 结账相关指标
	CheckoutTotal      *prometheus.CounterVec // 结账次数（按结果 created/reused）
	UpgradeTokenIssued prometheus.Counter     // 升级令牌签发数

	// 订阅相关指标
	SubscriptionExpiredTotal prometheus.Counter // 标记过期的用户数

	// 小票上传相关指标
	UploadTotal *prometheus.CounterVec // 待确认上传（按结果 created/confirmed/expired）

	// 分布式锁相关指标
	LockAcquireTotal    *prometheus.CounterVec // 锁获取总数（按结果）
	LockAcquireDuration prometheus.Histogram   // 锁获取耗时
}

// NewCatatUangMetrics 创建服务指标
func NewCatatUangMetrics() *CatatUangMetrics {
	return &CatatUangMetrics{
		QuotaCheckTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_quota_check_total",
				Help: "Total number of quota checks",
			},
			[]string{"counter", "result"}, // result: allowed/denied/error
		),
		QuotaCheckDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "catatuang_quota_check_duration_seconds",
				Help:    "Duration of quota check operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"counter"},
		),

		QuotaConsumeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_quota_consume_total",
				Help: "Total number of successful quota consumptions",
			},
			[]string{"counter", "plan"},
		),
		QuotaConsumeAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_quota_consume_amount_total",
				Help: "Total units consumed",
			},
			[]string{"counter"},
		),
		QuotaResetTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catatuang_quota_reset_total",
				Help: "Total number of monthly counter resets",
			},
		),

		WebhookTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_webhook_total",
				Help: "Total number of payment webhooks",
			},
			[]string{"result"},
		),
		WebhookDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catatuang_webhook_duration_seconds",
				Help:    "Duration of payment webhook handling",
				Buckets: prometheus.DefBuckets,
			},
		),

		PlanChangeTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_plan_change_total",
				Help: "Total number of plan changes",
			},
			[]string{"source", "plan"}, // source: webhook/legacy/admin
		),

		CheckoutTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_checkout_total",
				Help: "Total number of checkouts",
			},
			[]string{"result"},
		),
		UpgradeTokenIssued: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catatuang_upgrade_token_issued_total",
				Help: "Total number of upgrade tokens issued",
			},
		),

		SubscriptionExpiredTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "catatuang_subscription_expired_total",
				Help: "Total number of subscriptions marked expired",
			},
		),

		UploadTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_upload_total",
				Help: "Total number of pending receipt uploads by outcome",
			},
			[]string{"result"},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "catatuang_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"result"}, // result: success/failed
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "catatuang_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0}, // 毫秒级
			},
		),
	}
}

// 全局指标实例（promauto 注册到默认 registry，只能创建一次）
var (
	defaultMetrics *CatatUangMetrics
	initOnce       sync.Once
)

// InitMetrics 初始化全局指标
func InitMetrics() {
	initOnce.Do(func() {
		defaultMetrics = NewCatatUangMetrics()
	})
}

// GetMetrics 获取全局指标实例
func GetMetrics() *CatatUangMetrics {
	InitMetrics()
	return defaultMetrics
}

package constants

import "time"

// 时间格式常量
const (
	// TimeFormatMonth 月份格式 (YYYY-MM)
	TimeFormatMonth = "2006-01"
	// TimeFormatDate 日期格式 (YYYY-MM-DD)
	TimeFormatDate = "2006-01-02"
	// TimeFormatOrderID 订单号中的时间格式 (YmdHis)
	TimeFormatOrderID = "20060102150405"
)

// 默认配置
const (
	DefaultTimezone         = "Asia/Jakarta"
	DefaultFrontendURL      = "https://catatuang.click"
	DefaultPakasirBaseURL   = "https://app.pakasir.com"
	DefaultPakasirSlug      = "catatuang"
	DefaultExpiringSoonDays = 2
)

// Redis Key 前缀常量
const (
	// RedisKeyPricingActive 公开价格列表缓存
	RedisKeyPricingActive = "pricing:active"
	// RedisKeyUserLock 按手机号的用户创建锁
	RedisKeyUserLock = "user:lock:"
	// RedisKeyQuotaLock 按手机号的配额扣减锁
	RedisKeyQuotaLock = "quota:lock:"
	// RedisKeyWebhookLock 按订单号的回调处理锁
	RedisKeyWebhookLock = "webhook:lock:"
	// RedisKeyTokenLock 按手机号的升级令牌签发锁
	RedisKeyTokenLock = "token:lock:"
)

// 套餐名称
const (
	PlanFree      = "free"
	PlanStarter   = "starter"
	PlanPro       = "pro"
	PlanVIP       = "vip"
	PlanUnlimited = "unlimited"
)

// 用户状态
const (
	UserStatusActive  = "active"
	UserStatusBlocked = "blocked"
)

// 订阅状态
const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusExpired   = "expired"
	SubscriptionStatusCancelled = "cancelled"
)

// 回复风格
const (
	ResponseStyleSantai = "santai"
	ResponseStyleNetral = "netral"
	ResponseStyleFormal = "formal"
	ResponseStyleGaul   = "gaul"
)

// 支付状态
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
	PaymentStatusExpired   = "expired"
)

// 回调状态（网关 payload.status）
const (
	WebhookStatusCompleted = "completed"
	WebhookStatusPending   = "pending"
	WebhookStatusFailed    = "failed"
	WebhookStatusCancelled = "cancelled"
)

// 回调处理结果（同时作为指标 label）
const (
	WebhookResultProcessed        = "processed"
	WebhookResultAlreadyProcessed = "already_processed"
	WebhookResultNeedsReview      = "needs_review"
	WebhookResultUnmatched        = "unmatched"
	WebhookResultIgnored          = "ignored"
	WebhookResultStatusUpdated    = "status_updated"
	WebhookResultError            = "error"
)

// 配额计数器
const (
	CounterChat  = "chat"
	CounterStruk = "struk"
)

// 配额检查结果常量
const (
	QuotaCheckResultAllowed = "allowed"
	QuotaCheckResultDenied  = "denied"
	QuotaCheckResultError   = "error"
)

// 锁获取结果（指标 label）
const (
	LockResultSuccess = "success"
	LockResultFailed  = "failed"
)

// 交易类型与来源
const (
	TransactionTypeIncome    = "income"
	TransactionTypeExpense   = "expense"
	TransactionSourceText    = "text"
	TransactionSourceReceipt = "receipt"
)

// 订单号
const (
	// OrderIDPrefixUpgrade 升级订单号前缀
	OrderIDPrefixUpgrade = "UPGRADE"
	// OrderIDRandomLength 订单号随机段长度
	OrderIDRandomLength = 8
	// UpgradeTokenLength 升级令牌长度
	UpgradeTokenLength = 64
)

// 事件类型（RocketMQ）
const (
	EventPlanUpgraded        = "plan_upgraded"
	EventPaymentNeedsReview  = "payment_needs_review"
	EventSubscriptionExpired = "subscription_expired"
)

// 支付 metadata 键
const (
	MetadataNeedsReview  = "needs_review"
	MetadataReviewReason = "review_reason"
	MetadataWebhook      = "webhook"
	MetadataLegacy       = "legacy_resolution"
)

// 人工审核原因
const (
	ReviewReasonNotUpgrade  = "plan_not_higher"
	ReviewReasonUnderpaid   = "amount_below_total"
	ReviewReasonUnknownPlan = "unknown_plan"
	ReviewReasonUserMissing = "user_missing"
	// ReviewReasonPaymentClosed 支付已被标记为 failed/cancelled 后才收到完成回调
	ReviewReasonPaymentClosed = "payment_closed"
)

// 待确认上传状态
const (
	UploadStatusPending   = "pending"
	UploadStatusConfirmed = "confirmed"
	UploadStatusExpired   = "expired"
	UploadStatusCancelled = "cancelled"
)

// 上传确认时补全的默认值
const (
	// DefaultUploadTTL 待确认上传的有效期
	DefaultUploadTTL = 10 * time.Minute
	// DefaultUploadDescription 用户和识别结果都没有描述时使用
	DefaultUploadDescription = "Upload gambar"
)

// 订阅过期提示的功能上下文
const (
	ActionCekSaldo     = "cek_saldo"
	ActionRekapHariIni = "rekap_hari_ini"
	ActionRekapDetail  = "rekap_detail"
)

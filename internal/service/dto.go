package service

import (
	"time"

	"catatuang-service/internal/biz"
)

// ========== 用户 ==========

// CheckOrCreateRequest 首次接触时注册用户
type CheckOrCreateRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Name        string `json:"name" validate:"omitempty,max=255"`
}

// PhoneRequest 只携带手机号的请求（body 或 query）
type PhoneRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
}

// ReminderRequest 开关每日提醒
type ReminderRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Enabled     *bool  `json:"enabled" validate:"required"`
}

// StyleRequest 设置回复风格
type StyleRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Style       string `json:"style" validate:"required,max=20"`
}

// UserReply 用户信息
type UserReply struct {
	ID                    string `json:"id"`
	PhoneNumber           string `json:"phone_number"`
	Name                  string `json:"name"`
	Plan                  string `json:"plan"`
	Status                string `json:"status"`
	ReminderEnabled       bool   `json:"reminder_enabled"`
	ResponseStyle         string `json:"response_style"`
	SubscriptionStatus    string `json:"subscription_status"`
	SubscriptionStartedAt string `json:"subscription_started_at,omitempty"`
	SubscriptionExpiresAt string `json:"subscription_expires_at,omitempty"`
	SubscriptionActive    bool   `json:"subscription_active"`
	Created               bool   `json:"created"`
}

// ========== 配额 ==========

// ConsumeUploadRequest 上传小票前扣减额度
type ConsumeUploadRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Count       int    `json:"count" validate:"omitempty,min=1,max=100"`
}

// CanUseRequest 额度预检
type CanUseRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Counter     string `json:"counter" validate:"omitempty,oneof=chat struk"`
}

// QuotaReply 单个计数器的结果
type QuotaReply struct {
	PhoneNumber string           `json:"phone_number"`
	Plan        string           `json:"plan"`
	Quota       *biz.QuotaStatus `json:"quota"`
}

// LimitsReply 两个计数器的状态
type LimitsReply struct {
	PhoneNumber        string           `json:"phone_number"`
	Plan               string           `json:"plan"`
	SubscriptionActive bool             `json:"subscription_active"`
	Chat               *biz.QuotaStatus `json:"chat"`
	Struk              *biz.QuotaStatus `json:"struk"`
}

// TransactionItem 批量记账中的一条
type TransactionItem struct {
	Tanggal     string `json:"tanggal" validate:"required"`
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	Description string `json:"description" validate:"required,max=500"`
	Category    string `json:"category" validate:"omitempty,max=50"`
	Type        string `json:"type" validate:"required,oneof=income expense"`
	Source      string `json:"source" validate:"omitempty,oneof=text receipt"`
}

// BatchTransactionsRequest 批量记账
type BatchTransactionsRequest struct {
	PhoneNumber  string             `json:"phone_number" validate:"required,min=8,max=20"`
	Transactions []*TransactionItem `json:"transactions" validate:"required,min=1,max=100,dive,required"`
}

// BatchTransactionsReply 批量记账结果
type BatchTransactionsReply struct {
	CreatedCount   int              `json:"created_count"`
	TransactionIDs []string         `json:"transaction_ids"`
	PhoneNumber    string           `json:"phone_number"`
	Struk          *biz.QuotaStatus `json:"struk"`
}

// ========== 预算 ==========

// BudgetSetRequest 设置预算（同月累加）
type BudgetSetRequest struct {
	PhoneNumber  string `json:"phone_number" validate:"required,min=8,max=20"`
	BudgetAmount int64  `json:"budget_amount" validate:"min=0"`
	Month        int    `json:"month" validate:"omitempty,min=1,max=12"`
	Year         int    `json:"year" validate:"omitempty,min=2020,max=2100"`
}

// BudgetGetRequest 查询预算
type BudgetGetRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Month       int    `json:"month" validate:"omitempty,min=1,max=12"`
	Year        int    `json:"year" validate:"omitempty,min=2020,max=2100"`
}

// BudgetReply 预算结果
type BudgetReply struct {
	PhoneNumber  string `json:"phone_number"`
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	BudgetAmount int64  `json:"budget_amount"`
	AddedAmount  int64  `json:"added_amount,omitempty"`
	IsNew        bool   `json:"is_new,omitempty"`
}

// ========== 升级 ==========

// GenerateLinkRequest 生成升级链接
type GenerateLinkRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Plan        string `json:"plan" validate:"omitempty,max=20"`
}

// GenerateLinkReply 升级链接
type GenerateLinkReply struct {
	PhoneNumber string `json:"phone_number"`
	UpgradeURL  string `json:"upgrade_url"`
	Token       string `json:"token"`
	Plan        string `json:"plan,omitempty"`
	ExpiresAt   string `json:"expires_at"`
}

// PricingItem 套餐价格
type PricingItem struct {
	ID           string   `json:"id"`
	Plan         string   `json:"plan"`
	Price        int64    `json:"price"`
	Description  string   `json:"description"`
	Features     []string `json:"features"`
	DisplayOrder int      `json:"display_order"`
	ShowOnMain   bool     `json:"show_on_main"`
	BadgeText    string   `json:"badge_text,omitempty"`
}

// PricingListReply 公开价格列表
type PricingListReply struct {
	Pricings []*PricingItem `json:"pricings"`
}

// TokenRequest 路径或 query 中的令牌
type TokenRequest struct {
	Token string `json:"token" validate:"required"`
}

// TokenUser 令牌页展示的用户信息
type TokenUser struct {
	PhoneNumber string `json:"phone_number"`
	Name        string `json:"name"`
}

// ValidateTokenReply 令牌校验结果
type ValidateTokenReply struct {
	Token       string     `json:"token"`
	User        *TokenUser `json:"user"`
	CurrentPlan string     `json:"current_plan"`
}

// UpgradePlansReply 可升级套餐
type UpgradePlansReply struct {
	Token          string         `json:"token"`
	CurrentPlan    string         `json:"current_plan"`
	AvailablePlans []*PricingItem `json:"available_plans"`
}

// CheckoutRequest 结账
type CheckoutRequest struct {
	Token string `json:"token" validate:"required,len=64"`
	Plan  string `json:"plan" validate:"required,max=20"`
}

// CheckoutReply 结账结果
type CheckoutReply struct {
	Plan         string `json:"plan"`
	Amount       int64  `json:"amount"`
	Fee          int64  `json:"fee"`
	TotalPayment int64  `json:"total_payment"`
	PaymentURL   string `json:"payment_url"`
	OrderID      string `json:"order_id"`
	ExpiredAt    string `json:"expired_at"`
	Reused       bool   `json:"reused"`
}

// PaymentStatusReply 支付状态
type PaymentStatusReply struct {
	Status      string `json:"status"`
	OrderID     string `json:"order_id,omitempty"`
	CompletedAt string `json:"completed_at,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	UsedAt      string `json:"used_at,omitempty"`
}

// UpgradeSuccessReply 升级成功信息
type UpgradeSuccessReply struct {
	User       *TokenUser `json:"user"`
	Plan       string     `json:"plan"`
	UpgradedAt string     `json:"upgraded_at"`
}

// ========== 订阅 ==========

// ExpiringSoonRequest 即将到期查询
type ExpiringSoonRequest struct {
	Days int `json:"days" validate:"omitempty,min=1,max=30"`
}

// SubscriptionUser 订阅列表中的用户
type SubscriptionUser struct {
	ID                    string `json:"id"`
	PhoneNumber           string `json:"phone_number"`
	Name                  string `json:"name"`
	Plan                  string `json:"plan"`
	ResponseStyle         string `json:"response_style"`
	SubscriptionExpiresAt string `json:"subscription_expires_at"`
	DaysUntilExpiry       int    `json:"days_until_expiry"`
}

// SubscriptionListReply 订阅列表
type SubscriptionListReply struct {
	Days  int                 `json:"days,omitempty"`
	Count int                 `json:"count"`
	Users []*SubscriptionUser `json:"users"`
}

// EmptyRequest 无参数
type EmptyRequest struct{}

// SweepReply 批量清理结果
type SweepReply struct {
	UpdatedCount int64  `json:"updated_count"`
	Message      string `json:"message"`
}

// ========== 回调 ==========

// WebhookRequest 支付网关回调
type WebhookRequest struct {
	Amount        int64  `json:"amount" validate:"required,min=1"`
	OrderID       string `json:"order_id" validate:"required,max=255"`
	Project       string `json:"project" validate:"required,max=100"`
	Status        string `json:"status" validate:"required,oneof=completed pending failed cancelled"`
	PaymentMethod string `json:"payment_method" validate:"required,max=50"`
	CompletedAt   string `json:"completed_at"`
}

// WebhookReply 回调处理结果
type WebhookReply struct {
	Result       string `json:"result"`
	Message      string `json:"message"`
	OrderID      string `json:"order_id"`
	Status       string `json:"status"`
	PaymentID    string `json:"payment_id,omitempty"`
	UserID       string `json:"user_id,omitempty"`
	PreviousPlan string `json:"previous_plan,omitempty"`
	Plan         string `json:"plan,omitempty"`
}

// WebhookHealthReply 回调地址健康检查
type WebhookHealthReply struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Timestamp string `json:"timestamp"`
}

// ========== 管理 ==========

// ChangePlanRequest 管理员变更套餐
type ChangePlanRequest struct {
	ID   string `json:"id" validate:"required"`
	Plan string `json:"plan" validate:"required,max=20"`
}

// UserIDRequest 路径中的用户 ID
type UserIDRequest struct {
	ID string `json:"id" validate:"required"`
}

// DeleteUserReply 删除结果
type DeleteUserReply struct {
	Deleted bool `json:"deleted"`
}

// ReviewPaymentsRequest 待审核支付查询
type ReviewPaymentsRequest struct {
	Limit int `json:"limit" validate:"omitempty,min=1,max=200"`
}

// PaymentItem 支付记录
type PaymentItem struct {
	ID           string                 `json:"id"`
	OrderID      string                 `json:"order_id"`
	UserID       string                 `json:"user_id"`
	Plan         string                 `json:"plan"`
	Amount       int64                  `json:"amount"`
	TotalPayment int64                  `json:"total_payment"`
	Status       string                 `json:"status"`
	NeedsReview  bool                   `json:"needs_review"`
	CompletedAt  string                 `json:"completed_at,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// OrderIDRequest 路径中的订单号
type OrderIDRequest struct {
	OrderID string `json:"order_id" validate:"required,max=255"`
}

// ReviewPaymentsReply 待审核支付列表
type ReviewPaymentsReply struct {
	Payments []*PaymentItem `json:"payments"`
}

// UpsertPricingRequest 维护套餐价格
type UpsertPricingRequest struct {
	Plan         string   `json:"plan" validate:"required,max=20"`
	Price        int64    `json:"price" validate:"min=0"`
	IsActive     *bool    `json:"is_active"`
	Description  string   `json:"description"`
	Features     []string `json:"features"`
	DisplayOrder int      `json:"display_order"`
	ShowOnMain   *bool    `json:"show_on_main"`
	BadgeText    string   `json:"badge_text" validate:"omitempty,max=50"`
}

func toUserReply(u *biz.User, active, created bool, loc *time.Location) *UserReply {
	return &UserReply{
		ID:                    u.ID,
		PhoneNumber:           u.PhoneNumber,
		Name:                  u.Name,
		Plan:                  u.Plan,
		Status:                u.Status,
		ReminderEnabled:       u.ReminderEnabled,
		ResponseStyle:         u.ResponseStyle,
		SubscriptionStatus:    u.SubscriptionStatus,
		SubscriptionStartedAt: formatDate(u.SubscriptionStartedAt, loc),
		SubscriptionExpiresAt: formatDate(u.SubscriptionExpiresAt, loc),
		SubscriptionActive:    active,
		Created:               created,
	}
}

func toPricingItems(list []*biz.Pricing) []*PricingItem {
	out := make([]*PricingItem, 0, len(list))
	for _, p := range list {
		out = append(out, &PricingItem{
			ID:           p.ID,
			Plan:         p.Plan,
			Price:        p.Price,
			Description:  p.Description,
			Features:     p.Features,
			DisplayOrder: p.DisplayOrder,
			ShowOnMain:   p.ShowOnMain,
			BadgeText:    p.BadgeText,
		})
	}
	return out
}

// ========== 小票上传 ==========

// CreateUploadRequest 机器人收到图片后登记待确认上传
type CreateUploadRequest struct {
	PhoneNumber   string                 `json:"phone_number" validate:"required,min=8,max=20"`
	ImageURL      string                 `json:"image_url" validate:"required,url,max=500"`
	ImagePath     string                 `json:"image_path" validate:"omitempty,max=500"`
	ExtractedData map[string]interface{} `json:"extracted_data"`
}

// ConfirmUploadRequest 用户确认上传，amount/description 缺省时取识别结果
type ConfirmUploadRequest struct {
	PhoneNumber     string `json:"phone_number" validate:"required,min=8,max=20"`
	TransactionType string `json:"transaction_type" validate:"required,oneof=income expense"`
	Amount          int64  `json:"amount" validate:"min=0"`
	Description     string `json:"description" validate:"omitempty,max=500"`
	Tanggal         string `json:"tanggal"`
}

// UploadReply 待确认上传
type UploadReply struct {
	ID               string                 `json:"id"`
	PhoneNumber      string                 `json:"phone_number"`
	ImageURL         string                 `json:"image_url"`
	ImagePath        string                 `json:"image_path,omitempty"`
	Status           string                 `json:"status"`
	ExtractedData    map[string]interface{} `json:"extracted_data,omitempty"`
	ExpiresAt        string                 `json:"expires_at"`
	ExpiresInSeconds int64                  `json:"expires_in_seconds"`
	ResponseStyle    string                 `json:"response_style"`
}

// ConfirmUploadReply 确认结果
type ConfirmUploadReply struct {
	UploadID    string           `json:"upload_id"`
	Transaction *TransactionView `json:"transaction"`
	Struk       *biz.QuotaStatus `json:"struk"`
}

// ========== 提醒 ==========

// ReminderTarget 今日需要提醒的用户
type ReminderTarget struct {
	PhoneNumber   string `json:"phone_number"`
	Name          string `json:"name"`
	ResponseStyle string `json:"response_style"`
}

// TodayEmptyReply 今天还没有记账的用户
type TodayEmptyReply struct {
	Date  string            `json:"date"`
	Count int               `json:"count"`
	Items []*ReminderTarget `json:"items"`
}

// ========== 汇总 ==========

// SummaryPeriodRequest 按月汇总，month/year 缺省为当月
type SummaryPeriodRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Month       int    `json:"month" validate:"omitempty,min=1,max=12"`
	Year        int    `json:"year" validate:"omitempty,min=2020,max=2100"`
}

// ByCategoryRequest 某分类明细
type ByCategoryRequest struct {
	PhoneNumber string `json:"phone_number" validate:"required,min=8,max=20"`
	Category    string `json:"category" validate:"required,max=50"`
	Month       int    `json:"month" validate:"omitempty,min=1,max=12"`
	Year        int    `json:"year" validate:"omitempty,min=2020,max=2100"`
}

// TransactionView 一笔交易
type TransactionView struct {
	ID          string `json:"id"`
	Tanggal     string `json:"tanggal"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Type        string `json:"type"`
	Source      string `json:"source"`
}

// TodaySummaryReply 今日收支，detail 接口才带明细
type TodaySummaryReply struct {
	PhoneNumber  string             `json:"phone_number"`
	Date         string             `json:"date"`
	TotalExpense int64              `json:"total_expense"`
	TotalIncome  int64              `json:"total_income"`
	Count        int                `json:"count"`
	Transactions []*TransactionView `json:"transactions,omitempty"`
}

// MonthBalanceReply 本月收支与结余
type MonthBalanceReply struct {
	PhoneNumber  string `json:"phone_number"`
	Period       string `json:"period"`
	Month        int    `json:"month"`
	Year         int    `json:"year"`
	TotalIncome  int64  `json:"total_income"`
	TotalExpense int64  `json:"total_expense"`
	Net          int64  `json:"net"`
}

// CategoryStatItem 分类占比
type CategoryStatItem struct {
	Category   string  `json:"category"`
	Total      int64   `json:"total"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// CategoryStatisticsReply 按分类的支出统计
type CategoryStatisticsReply struct {
	PhoneNumber  string              `json:"phone_number"`
	Period       string              `json:"period"`
	Month        int                 `json:"month"`
	Year         int                 `json:"year"`
	TotalExpense int64               `json:"total_expense"`
	Categories   []*CategoryStatItem `json:"categories"`
}

// ByCategoryReply 某分类的交易明细
type ByCategoryReply struct {
	PhoneNumber  string             `json:"phone_number"`
	Period       string             `json:"period"`
	Category     string             `json:"category"`
	Total        int64              `json:"total"`
	TotalIncome  int64              `json:"total_income"`
	TotalExpense int64              `json:"total_expense"`
	Count        int                `json:"count"`
	Transactions []*TransactionView `json:"transactions"`
}

func toTransactionViews(list []*biz.TransactionRecord, loc *time.Location) []*TransactionView {
	out := make([]*TransactionView, 0, len(list))
	for _, r := range list {
		out = append(out, toTransactionView(r, loc))
	}
	return out
}

func toTransactionView(r *biz.TransactionRecord, loc *time.Location) *TransactionView {
	return &TransactionView{
		ID:          r.ID,
		Tanggal:     formatDate(&r.Tanggal, loc),
		Amount:      r.Amount,
		Description: r.Description,
		Category:    r.Category,
		Type:        r.Type,
		Source:      r.Source,
	}
}

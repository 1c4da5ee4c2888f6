package biz

import (
	"context"
	"strings"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// Payment 一次升级购买的支付记录
type Payment struct {
	ID              string
	OrderID         string
	UserID          string
	UpgradeTokenID  *string
	Plan            string
	Amount          int64
	Fee             int64
	TotalPayment    int64
	Status          string
	PaymentMethod   string
	ExternalOrderID string
	ExpiresAt       *time.Time
	CompletedAt     *time.Time
	NeedsReview     bool
	Metadata        map[string]interface{}
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// IsExpired 仅 pending 且已过 expires_at 的支付视为过期（逻辑状态，不落库）
func (p *Payment) IsExpired(now time.Time) bool {
	return p.Status == constants.PaymentStatusPending && p.ExpiresAt != nil && p.ExpiresAt.Before(now)
}

// PaymentCompletion 标记完成时写入的字段
type PaymentCompletion struct {
	PaymentMethod   string
	ExternalOrderID string
	CompletedAt     time.Time
	NeedsReview     bool
	Metadata        map[string]interface{}
}

// PaymentRepo 支付记录数据层接口
type PaymentRepo interface {
	CreatePayment(ctx context.Context, p *Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error)
	// LockPaymentByOrderID 需在事务内调用
	LockPaymentByOrderID(ctx context.Context, orderID string) (*Payment, error)
	// FindPendingPayment 同一令牌、同一套餐下未过期的 pending 支付
	FindPendingPayment(ctx context.Context, tokenID, plan string, now time.Time) (*Payment, error)
	// LatestPaymentForToken 令牌下最新一条非 cancelled 的支付
	LatestPaymentForToken(ctx context.Context, tokenID string) (*Payment, error)
	MarkPaymentCompleted(ctx context.Context, paymentID string, c *PaymentCompletion) error
	UpdatePaymentStatus(ctx context.Context, paymentID, status string, metadata map[string]interface{}) error
	ListNeedsReview(ctx context.Context, limit int) ([]*Payment, error)
}

// CheckoutResult 结账结果
type CheckoutResult struct {
	Payment    *Payment
	PaymentURL string
	Reused     bool
}

// PaymentStatusView 按令牌查询的支付状态
type PaymentStatusView struct {
	Status      string
	OrderID     string
	CompletedAt *time.Time
	ExpiresAt   *time.Time
	UsedAt      *time.Time
}

// UpgradeSuccess 升级成功页信息
type UpgradeSuccess struct {
	User       *User
	Plan       string
	UpgradedAt time.Time
}

// PaymentUseCase 支付记录与结账流程
type PaymentUseCase struct {
	repo      PaymentRepo
	tokens    *UpgradeTokenUseCase
	tokenRepo UpgradeTokenRepo
	userRepo  UserRepo
	pricing   *PricingUseCase
	gateway   PaymentGateway
	tx        Transaction
	plans     *PlanPolicy
	clock     Clock
	conf      *ServiceConfig
	log       *log.Helper
	metrics   *metrics.CatatUangMetrics
}

// NewPaymentUseCase 创建支付 UseCase
func NewPaymentUseCase(
	repo PaymentRepo,
	tokens *UpgradeTokenUseCase,
	tokenRepo UpgradeTokenRepo,
	userRepo UserRepo,
	pricing *PricingUseCase,
	gateway PaymentGateway,
	tx Transaction,
	plans *PlanPolicy,
	clock Clock,
	conf *ServiceConfig,
	logger log.Logger,
) *PaymentUseCase {
	return &PaymentUseCase{
		repo:      repo,
		tokens:    tokens,
		tokenRepo: tokenRepo,
		userRepo:  userRepo,
		pricing:   pricing,
		gateway:   gateway,
		tx:        tx,
		plans:     plans,
		clock:     clock,
		conf:      conf,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

// newOrderID 格式：UPGRADE_{YmdHis}_{8位大写随机}
func newOrderID(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))[:constants.OrderIDRandomLength]
	return constants.OrderIDPrefixUpgrade + "_" + now.Format(constants.TimeFormatOrderID) + "_" + suffix
}

// CreatePayment 生成订单号并写入 pending 支付记录。
// 订单号已存在时重新生成一次，仍冲突返回 409。
func (uc *PaymentUseCase) CreatePayment(ctx context.Context, p *Payment) error {
	now := uc.clock.Now()
	if p.Status == "" {
		p.Status = constants.PaymentStatusPending
	}
	if p.ExpiresAt == nil {
		expires := now.Add(uc.conf.PaymentTTL)
		p.ExpiresAt = &expires
	}
	for i := 0; i < 2; i++ {
		orderID := newOrderID(now)
		existing, err := uc.repo.GetPaymentByOrderID(ctx, orderID)
		if err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		if existing != nil {
			uc.log.Warnf("order id collision, regenerating: order_id=%s", orderID)
			continue
		}
		p.OrderID = orderID
		if err := uc.repo.CreatePayment(ctx, p); err != nil {
			if isDuplicate(err) {
				return bizErrors.WrapError(err, bizErrors.ErrCodeOrderIDCollision)
			}
			return bizErrors.WrapError(err, bizErrors.ErrCodePaymentCreateFailed)
		}
		return nil
	}
	return bizErrors.NewBizError(bizErrors.ErrCodeOrderIDCollision)
}

// FindByOrderID 按订单号查询，不存在返回 nil
func (uc *PaymentUseCase) FindByOrderID(ctx context.Context, orderID string) (*Payment, error) {
	p, err := uc.repo.GetPaymentByOrderID(ctx, orderID)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return p, nil
}

// MarkAsCompleted pending -> completed 的单向迁移，已完成时返回 false 且不写库
func (uc *PaymentUseCase) MarkAsCompleted(ctx context.Context, p *Payment, c *PaymentCompletion) (bool, error) {
	if p.Status == constants.PaymentStatusCompleted {
		return false, nil
	}
	if err := uc.repo.MarkPaymentCompleted(ctx, p.ID, c); err != nil {
		return false, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	completedAt := c.CompletedAt
	p.Status = constants.PaymentStatusCompleted
	p.PaymentMethod = c.PaymentMethod
	p.ExternalOrderID = c.ExternalOrderID
	p.CompletedAt = &completedAt
	p.NeedsReview = c.NeedsReview
	p.Metadata = c.Metadata
	return true, nil
}

// ValidateToken 校验令牌并返回对应用户
func (uc *PaymentUseCase) ValidateToken(ctx context.Context, token string) (*UpgradeToken, *User, error) {
	t, err := uc.tokens.FindValid(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	u, err := uc.userRepo.GetUserByPhone(ctx, t.PhoneNumber)
	if err != nil {
		return nil, nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return nil, nil, bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}
	return t, u, nil
}

// AvailablePlans 令牌对应用户可升级的套餐
func (uc *PaymentUseCase) AvailablePlans(ctx context.Context, token string) (*User, []*Pricing, error) {
	_, u, err := uc.ValidateToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	list, err := uc.pricing.AvailableForUpgrade(ctx, u.Plan)
	if err != nil {
		return nil, nil, err
	}
	return u, list, nil
}

// Checkout 为令牌和目标套餐创建（或复用）pending 支付并返回支付链接
func (uc *PaymentUseCase) Checkout(ctx context.Context, token, plan, clientIP string) (*CheckoutResult, error) {
	t, u, err := uc.ValidateToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if !uc.plans.Purchasable(plan) {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodePlanUnavailable, map[string]string{"plan": plan})
	}
	pricing, err := uc.pricing.repo.GetActivePricing(ctx, plan)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if pricing == nil {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodePricingNotFound, map[string]string{"plan": plan})
	}
	if uc.plans.Level(u.Plan) >= uc.plans.Level(plan) {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodePlanNotHigher, map[string]string{
			"current_plan": u.Plan,
			"plan":         plan,
		})
	}

	// 插入失败会中止整个事务，订单号冲突时换一个新事务重试
	var result *CheckoutResult
	for attempt := 0; attempt < 2; attempt++ {
		result = &CheckoutResult{}
		err = uc.tx.InTx(ctx, func(ctx context.Context) error {
			return uc.openPayment(ctx, t, u, pricing, result)
		})
		if !bizErrors.Is(err, bizErrors.ErrCodeOrderIDCollision) {
			break
		}
		uc.log.Warnf("checkout order id collision, retrying: user_id=%s, attempt=%d", u.ID, attempt+1)
	}
	if err != nil {
		uc.countCheckout("error")
		return nil, err
	}

	reply, err := uc.gateway.CreatePayment(ctx, &CreatePaymentRequest{
		OrderID: result.Payment.OrderID,
		UserID:  u.ID,
		Plan:    plan,
		Amount:  result.Payment.Amount,
	})
	if err != nil {
		uc.countCheckout("error")
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodePaymentCreateFailed)
	}
	result.PaymentURL = reply.PayURL

	if result.Reused {
		uc.countCheckout("reused")
	} else {
		uc.countCheckout("created")
	}
	uc.log.Infof("checkout initialized: user_id=%s, phone=%s, plan=%s, amount=%d, order_id=%s, reused=%v, client_ip=%s",
		u.ID, u.PhoneNumber, plan, result.Payment.Amount, result.Payment.OrderID, result.Reused, clientIP)
	return result, nil
}

// openPayment 锁定用户后复用未过期的 pending 支付，没有则新建
func (uc *PaymentUseCase) openPayment(ctx context.Context, t *UpgradeToken, u *User, pricing *Pricing, result *CheckoutResult) error {
	// 锁定用户行，串行化同一用户的重复点击
	if _, err := uc.userRepo.LockUserByID(ctx, u.ID); err != nil {
		return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	existing, err := uc.repo.FindPendingPayment(ctx, t.ID, pricing.Plan, uc.clock.Now())
	if err != nil {
		return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if existing != nil {
		result.Payment = existing
		result.Reused = true
		return nil
	}
	tokenID := t.ID
	p := &Payment{
		UserID:         u.ID,
		UpgradeTokenID: &tokenID,
		Plan:           pricing.Plan,
		Amount:         pricing.Price,
		Fee:            0,
		TotalPayment:   pricing.Price,
	}
	if err := uc.CreatePayment(ctx, p); err != nil {
		return err
	}
	result.Payment = p
	return nil
}

// Status 令牌的支付状态：最新非 cancelled 支付，否则看令牌是否已使用，否则 pending
func (uc *PaymentUseCase) Status(ctx context.Context, token string) (*PaymentStatusView, error) {
	t, err := uc.tokenRepo.GetTokenByValue(ctx, token)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if t == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeTokenNotFound)
	}
	p, err := uc.repo.LatestPaymentForToken(ctx, t.ID)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if p != nil {
		status := p.Status
		if p.IsExpired(uc.clock.Now()) {
			status = constants.PaymentStatusExpired
		}
		return &PaymentStatusView{
			Status:      status,
			OrderID:     p.OrderID,
			CompletedAt: p.CompletedAt,
			ExpiresAt:   p.ExpiresAt,
		}, nil
	}
	if t.UsedAt != nil {
		return &PaymentStatusView{Status: constants.PaymentStatusCompleted, UsedAt: t.UsedAt}, nil
	}
	return &PaymentStatusView{Status: constants.PaymentStatusPending}, nil
}

// SuccessInfo 已使用令牌对应的升级结果
func (uc *PaymentUseCase) SuccessInfo(ctx context.Context, token string) (*UpgradeSuccess, error) {
	t, err := uc.tokenRepo.GetTokenByValue(ctx, token)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if t == nil || t.UsedAt == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeTokenNotFound)
	}
	u, err := uc.userRepo.GetUserByPhone(ctx, t.PhoneNumber)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}
	return &UpgradeSuccess{User: u, Plan: u.Plan, UpgradedAt: *t.UsedAt}, nil
}

// ListNeedsReview 需要人工处理的支付
func (uc *PaymentUseCase) ListNeedsReview(ctx context.Context, limit int) ([]*Payment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	list, err := uc.repo.ListNeedsReview(ctx, limit)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return list, nil
}

func (uc *PaymentUseCase) countCheckout(result string) {
	if uc.metrics != nil {
		uc.metrics.CheckoutTotal.WithLabelValues(result).Inc()
	}
}

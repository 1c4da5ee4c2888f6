package biz

import (
	"context"
	"errors"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/metrics"

	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// WebhookPayload 支付网关回调内容
type WebhookPayload struct {
	Amount        int64
	OrderID       string
	Project       string
	Status        string
	PaymentMethod string
	CompletedAt   *time.Time
	Raw           map[string]interface{} // 原始 payload，写入 metadata 供人工对账
}

// WebhookOutcome 回调处理结果，Result 取值见 constants.WebhookResult*
type WebhookOutcome struct {
	Result       string
	Message      string
	OrderID      string
	PaymentID    string
	UserID       string
	PreviousPlan string
	Plan         string
	Status       string
}

// ReconcileUseCase 支付确认 -> 套餐变更的唯一入口
type ReconcileUseCase struct {
	payments  PaymentRepo
	paymentUC *PaymentUseCase
	tokens    UpgradeTokenRepo
	tokenUC   *UpgradeTokenUseCase
	users     UserRepo
	pricings  PricingRepo
	tx        Transaction
	locker    Locker
	plans     *PlanPolicy
	clock     Clock
	conf      *ServiceConfig
	publisher EventPublisher
	log       *log.Helper
	metrics   *metrics.CatatUangMetrics
}

// NewReconcileUseCase 创建对账 UseCase
func NewReconcileUseCase(
	payments PaymentRepo,
	paymentUC *PaymentUseCase,
	tokens UpgradeTokenRepo,
	tokenUC *UpgradeTokenUseCase,
	users UserRepo,
	pricings PricingRepo,
	tx Transaction,
	locker Locker,
	plans *PlanPolicy,
	clock Clock,
	conf *ServiceConfig,
	publisher EventPublisher,
	logger log.Logger,
) *ReconcileUseCase {
	return &ReconcileUseCase{
		payments:  payments,
		paymentUC: paymentUC,
		tokens:    tokens,
		tokenUC:   tokenUC,
		users:     users,
		pricings:  pricings,
		tx:        tx,
		locker:    locker,
		plans:     plans,
		clock:     clock,
		conf:      conf,
		publisher: publisher,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

var webhookStatuses = map[string]bool{
	constants.WebhookStatusCompleted: true,
	constants.WebhookStatusPending:   true,
	constants.WebhookStatusFailed:    true,
	constants.WebhookStatusCancelled: true,
}

// HandleWebhook 处理一次回调。
// 返回 error 时网关应当重试（基础设施错误）或请求本身无效；其余情况（含未匹配）均返回 outcome 并确认收到。
func (uc *ReconcileUseCase) HandleWebhook(ctx context.Context, in *WebhookPayload) (*WebhookOutcome, error) {
	startTime := time.Now()
	out, err := uc.handle(ctx, in)
	if uc.metrics != nil {
		uc.metrics.WebhookDuration.Observe(time.Since(startTime).Seconds())
		result := constants.WebhookResultError
		if err == nil {
			result = out.Result
		}
		uc.metrics.WebhookTotal.WithLabelValues(result).Inc()
	}
	return out, err
}

func (uc *ReconcileUseCase) handle(ctx context.Context, in *WebhookPayload) (*WebhookOutcome, error) {
	if in == nil || in.OrderID == "" || in.Amount < 1 || !webhookStatuses[in.Status] {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeWebhookInvalidPayload)
	}
	if uc.conf.VerifyProject && in.Project != "" && in.Project != uc.conf.ProjectSlug {
		uc.log.Warnf("webhook project mismatch: expected=%s, received=%s, payload=%v", uc.conf.ProjectSlug, in.Project, in.Raw)
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeWebhookProjectMismatch)
	}

	switch in.Status {
	case constants.WebhookStatusPending:
		return &WebhookOutcome{
			Result:  constants.WebhookResultIgnored,
			Message: "payment status is not completed, no action taken",
			OrderID: in.OrderID,
			Status:  in.Status,
		}, nil
	case constants.WebhookStatusFailed, constants.WebhookStatusCancelled:
		return uc.closePayment(ctx, in)
	}

	// 同一订单的重复投递先在 Redis 上排队，行锁保证最终正确性
	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyWebhookLock+in.OrderID)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeLockFailed)
	}
	defer unlock()

	var (
		out    *WebhookOutcome
		events []*SubscriptionEvent
	)
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		out, events = nil, nil
		p, err := uc.payments.LockPaymentByOrderID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if p != nil {
			out, events, err = uc.settle(ctx, in, p)
			return err
		}
		out, events, err = uc.settleLegacy(ctx, in)
		return err
	})
	if err != nil {
		uc.log.Errorf("webhook reconcile failed: order_id=%s, err=%v, payload=%v", in.OrderID, err, in.Raw)
		var kerr *kerrors.Error
		if errors.As(err, &kerr) {
			return nil, err
		}
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeReconcileFailed)
	}
	uc.publish(ctx, events)
	return out, nil
}

// settle 已存在支付记录的完成回调；需在事务内调用且支付行已锁定
func (uc *ReconcileUseCase) settle(ctx context.Context, in *WebhookPayload, p *Payment) (*WebhookOutcome, []*SubscriptionEvent, error) {
	out := &WebhookOutcome{OrderID: in.OrderID, PaymentID: p.ID, UserID: p.UserID, Plan: p.Plan, Status: in.Status}
	if p.Status == constants.PaymentStatusCompleted {
		uc.log.Infof("webhook already processed: order_id=%s, payment_id=%s", in.OrderID, p.ID)
		out.Result = constants.WebhookResultAlreadyProcessed
		out.Message = "payment already processed"
		return out, nil, nil
	}

	u, err := uc.users.LockUserByID(ctx, p.UserID)
	if err != nil {
		return nil, nil, err
	}
	now := uc.clock.Now()
	reason := uc.reviewReason(u, p.Plan, in.Amount, p.TotalPayment)
	if p.Status != constants.PaymentStatusPending {
		// 已关闭的支付收到完成回调：记下这笔钱，套餐交给人工处理
		uc.log.Warnf("completion for %s payment: order_id=%s", p.Status, in.OrderID)
		reason = constants.ReviewReasonPaymentClosed
	}

	completion := &PaymentCompletion{
		PaymentMethod:   in.PaymentMethod,
		ExternalOrderID: in.OrderID,
		CompletedAt:     completedAt(in, now),
		NeedsReview:     reason != "",
		Metadata:        webhookMetadata(p.Metadata, in, reason),
	}
	if _, err := uc.paymentUC.MarkAsCompleted(ctx, p, completion); err != nil {
		return nil, nil, err
	}

	var events []*SubscriptionEvent
	if reason == "" {
		out.PreviousPlan = u.Plan
		if err := uc.applyPlan(ctx, u, p.Plan, now); err != nil {
			return nil, nil, err
		}
		out.Result = constants.WebhookResultProcessed
		out.Message = "payment processed and upgrade completed"
		events = append(events, uc.event(constants.EventPlanUpgraded, u, out.PreviousPlan, in.OrderID, "", now))
		uc.countPlanChange("webhook", p.Plan)
	} else {
		out.Result = constants.WebhookResultNeedsReview
		out.Message = "payment recorded, plan unchanged pending review"
		if u != nil {
			out.PreviousPlan = u.Plan
		}
		uc.log.Warnf("webhook needs review: order_id=%s, reason=%s, user_id=%s, plan=%s, amount=%d, payload=%v",
			in.OrderID, reason, p.UserID, p.Plan, in.Amount, in.Raw)
		events = append(events, uc.reviewEvent(u, p, reason, now))
	}

	if p.UpgradeTokenID != nil {
		if err := uc.tokenUC.MarkAsUsed(ctx, *p.UpgradeTokenID); err != nil {
			return nil, nil, err
		}
	}
	if reason == "" {
		uc.log.Infof("payment processed: order_id=%s, payment_id=%s, user_id=%s, old_plan=%s, new_plan=%s, amount=%d, method=%s",
			in.OrderID, p.ID, u.ID, out.PreviousPlan, p.Plan, in.Amount, in.PaymentMethod)
	}
	return out, events, nil
}

// settleLegacy 找不到支付记录：order_id 为 64 位令牌时按金额匹配价格完成升级
func (uc *ReconcileUseCase) settleLegacy(ctx context.Context, in *WebhookPayload) (*WebhookOutcome, []*SubscriptionEvent, error) {
	unmatched := func(msg string) (*WebhookOutcome, []*SubscriptionEvent, error) {
		uc.log.Warnf("webhook unmatched: order_id=%s, reason=%s, payload=%v", in.OrderID, msg, in.Raw)
		return &WebhookOutcome{
			Result:  constants.WebhookResultUnmatched,
			Message: "payment received but not matched: " + msg,
			OrderID: in.OrderID,
			Status:  in.Status,
		}, nil, nil
	}
	if !uc.conf.LegacyFallback {
		return unmatched("no payment record")
	}
	if len(in.OrderID) != constants.UpgradeTokenLength {
		return unmatched("no payment record and order id is not a token")
	}
	t, err := uc.tokens.GetTokenByValue(ctx, in.OrderID)
	if err != nil {
		return nil, nil, err
	}
	if t == nil {
		return unmatched("token not found")
	}
	if t.UsedAt != nil {
		return unmatched("token already used")
	}
	pricing, err := uc.pricings.GetActivePricingByPrice(ctx, in.Amount)
	if err != nil {
		return nil, nil, err
	}
	if pricing == nil {
		return unmatched("no active pricing for amount")
	}
	u, err := uc.users.LockUserByPhone(ctx, t.PhoneNumber)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return unmatched("user not found")
	}

	now := uc.clock.Now()
	reason := uc.reviewReason(u, pricing.Plan, in.Amount, pricing.Price)
	md := webhookMetadata(nil, in, reason)
	md[constants.MetadataLegacy] = true
	tokenID := t.ID
	done := completedAt(in, now)
	p := &Payment{
		OrderID:         in.OrderID,
		UserID:          u.ID,
		UpgradeTokenID:  &tokenID,
		Plan:            pricing.Plan,
		Amount:          pricing.Price,
		TotalPayment:    pricing.Price,
		Status:          constants.PaymentStatusCompleted,
		PaymentMethod:   in.PaymentMethod,
		ExternalOrderID: in.OrderID,
		ExpiresAt:       &now,
		CompletedAt:     &done,
		NeedsReview:     reason != "",
		Metadata:        md,
	}
	if err := uc.payments.CreatePayment(ctx, p); err != nil {
		return nil, nil, err
	}

	out := &WebhookOutcome{OrderID: in.OrderID, PaymentID: p.ID, UserID: u.ID, PreviousPlan: u.Plan, Plan: p.Plan, Status: in.Status}
	var events []*SubscriptionEvent
	if reason == "" {
		if err := uc.applyPlan(ctx, u, p.Plan, now); err != nil {
			return nil, nil, err
		}
		out.Result = constants.WebhookResultProcessed
		out.Message = "payment processed via token fallback"
		events = append(events, uc.event(constants.EventPlanUpgraded, u, out.PreviousPlan, in.OrderID, "", now))
		uc.countPlanChange("legacy", p.Plan)
	} else {
		out.Result = constants.WebhookResultNeedsReview
		out.Message = "payment recorded, plan unchanged pending review"
		events = append(events, uc.reviewEvent(u, p, reason, now))
	}
	if _, err := uc.tokens.MarkTokenUsed(ctx, t.ID, now); err != nil {
		return nil, nil, err
	}
	uc.log.Infof("legacy webhook resolved: order_id=%s, user_id=%s, plan=%s, result=%s", in.OrderID, u.ID, p.Plan, out.Result)
	return out, events, nil
}

// closePayment failed/cancelled 回调：只迁移 pending 支付
func (uc *ReconcileUseCase) closePayment(ctx context.Context, in *WebhookPayload) (*WebhookOutcome, error) {
	out := &WebhookOutcome{OrderID: in.OrderID, Status: in.Status}
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		p, err := uc.payments.LockPaymentByOrderID(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if p == nil {
			out.Result = constants.WebhookResultUnmatched
			out.Message = "payment not found"
			return nil
		}
		out.PaymentID = p.ID
		out.UserID = p.UserID
		out.Plan = p.Plan
		if p.Status != constants.PaymentStatusPending {
			out.Result = constants.WebhookResultIgnored
			out.Message = "payment already in terminal status " + p.Status
			return nil
		}
		if err := uc.payments.UpdatePaymentStatus(ctx, p.ID, in.Status, webhookMetadata(p.Metadata, in, "")); err != nil {
			return err
		}
		out.Result = constants.WebhookResultStatusUpdated
		out.Message = "payment marked " + in.Status
		return nil
	})
	if err != nil {
		uc.log.Errorf("webhook status update failed: order_id=%s, err=%v", in.OrderID, err)
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeReconcileFailed)
	}
	uc.log.Infof("webhook %s: order_id=%s, result=%s", in.Status, in.OrderID, out.Result)
	return out, nil
}

// ChangePlan 管理员直接变更套餐（允许降级），同样重置订阅窗口
func (uc *ReconcileUseCase) ChangePlan(ctx context.Context, userID, plan string) (*User, error) {
	if _, ok := uc.plans.Get(plan); !ok {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeUnknownPlan, map[string]string{"plan": plan})
	}
	var (
		user     *User
		previous string
	)
	now := uc.clock.Now()
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := uc.users.LockUserByID(ctx, userID)
		if err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		if u == nil {
			return bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
		}
		previous = u.Plan
		if err := uc.applyPlan(ctx, u, plan, now); err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		user = u
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.countPlanChange("admin", plan)
	uc.log.Infof("plan changed by admin: user_id=%s, old_plan=%s, new_plan=%s", user.ID, previous, plan)
	uc.publish(ctx, []*SubscriptionEvent{uc.event(constants.EventPlanUpgraded, user, previous, "", "admin", now)})
	return user, nil
}

// applyPlan 设置套餐并从今天重新开始订阅窗口
func (uc *ReconcileUseCase) applyPlan(ctx context.Context, u *User, plan string, now time.Time) error {
	u.Plan = plan
	u.ApplyWindow(windowFor(uc.plans, plan, now))
	return uc.users.SaveSubscription(ctx, u)
}

// reviewReason 非空表示只记录付款、不变更套餐
func (uc *ReconcileUseCase) reviewReason(u *User, plan string, paid, expected int64) string {
	switch {
	case u == nil:
		return constants.ReviewReasonUserMissing
	case !uc.knownPlan(plan):
		return constants.ReviewReasonUnknownPlan
	case uc.plans.Level(u.Plan) >= uc.plans.Level(plan):
		return constants.ReviewReasonNotUpgrade
	case paid < expected:
		return constants.ReviewReasonUnderpaid
	}
	return ""
}

func (uc *ReconcileUseCase) knownPlan(plan string) bool {
	_, ok := uc.plans.Get(plan)
	return ok
}

func (uc *ReconcileUseCase) event(typ string, u *User, previous, orderID, reason string, now time.Time) *SubscriptionEvent {
	return &SubscriptionEvent{
		Type:         typ,
		UserID:       u.ID,
		PhoneNumber:  u.PhoneNumber,
		OrderID:      orderID,
		PreviousPlan: previous,
		Plan:         u.Plan,
		ExpiresAt:    u.SubscriptionExpiresAt,
		Reason:       reason,
		OccurredAt:   now,
	}
}

func (uc *ReconcileUseCase) reviewEvent(u *User, p *Payment, reason string, now time.Time) *SubscriptionEvent {
	e := &SubscriptionEvent{
		Type:       constants.EventPaymentNeedsReview,
		UserID:     p.UserID,
		OrderID:    p.OrderID,
		Plan:       p.Plan,
		Reason:     reason,
		OccurredAt: now,
	}
	if u != nil {
		e.PhoneNumber = u.PhoneNumber
		e.PreviousPlan = u.Plan
	}
	return e
}

// publish 提交后尽力投递，失败只记日志
func (uc *ReconcileUseCase) publish(ctx context.Context, events []*SubscriptionEvent) {
	if len(events) == 0 || uc.publisher == nil {
		return
	}
	if err := uc.publisher.Publish(ctx, events...); err != nil {
		uc.log.Warnf("publish subscription events failed: count=%d, err=%v", len(events), err)
	}
}

func (uc *ReconcileUseCase) countPlanChange(source, plan string) {
	if uc.metrics != nil {
		uc.metrics.PlanChangeTotal.WithLabelValues(source, plan).Inc()
	}
}

func completedAt(in *WebhookPayload, now time.Time) time.Time {
	if in.CompletedAt != nil && !in.CompletedAt.IsZero() {
		return *in.CompletedAt
	}
	return now
}

// webhookMetadata 合并已有 metadata 与本次回调内容
func webhookMetadata(existing map[string]interface{}, in *WebhookPayload, reason string) map[string]interface{} {
	md := make(map[string]interface{}, len(existing)+3)
	for k, v := range existing {
		md[k] = v
	}
	if in.Raw != nil {
		md[constants.MetadataWebhook] = in.Raw
	}
	if reason != "" {
		md[constants.MetadataNeedsReview] = true
		md[constants.MetadataReviewReason] = reason
	}
	return md
}

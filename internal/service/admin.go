package service

import (
	"context"
	"time"

	"catatuang-service/internal/biz"
	bizErrors "catatuang-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// AdminService 管理后台接口（套餐、用户、待审核支付、价格）
type AdminService struct {
	users     *biz.UserUseCase
	reconcile *biz.ReconcileUseCase
	payments  *biz.PaymentUseCase
	pricing   *biz.PricingUseCase
	subs      *biz.SubscriptionUseCase
	loc       *time.Location
	log       *log.Helper
}

// NewAdminService 创建 AdminService
func NewAdminService(
	users *biz.UserUseCase,
	reconcile *biz.ReconcileUseCase,
	payments *biz.PaymentUseCase,
	pricing *biz.PricingUseCase,
	subs *biz.SubscriptionUseCase,
	clock biz.Clock,
	logger log.Logger,
) *AdminService {
	return &AdminService{
		users:     users,
		reconcile: reconcile,
		payments:  payments,
		pricing:   pricing,
		subs:      subs,
		loc:       clock.Now().Location(),
		log:       log.NewHelper(logger),
	}
}

// ChangePlan 直接变更用户套餐
func (s *AdminService) ChangePlan(ctx context.Context, req *ChangePlanRequest) (*UserReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	u, err := s.reconcile.ChangePlan(ctx, req.ID, req.Plan)
	if err != nil {
		s.log.Errorf("ChangePlan failed: user_id=%s, plan=%s, err=%v", req.ID, req.Plan, err)
		return nil, err
	}
	return toUserReply(u, s.subs.IsSubscriptionActive(u), false, s.loc), nil
}

// DeleteUser 删除用户及其关联数据
func (s *AdminService) DeleteUser(ctx context.Context, req *UserIDRequest) (*DeleteUserReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := s.users.Delete(ctx, req.ID); err != nil {
		return nil, err
	}
	return &DeleteUserReply{Deleted: true}, nil
}

// ReviewPayments 已收款但未变更套餐、需要人工处理的支付
func (s *AdminService) ReviewPayments(ctx context.Context, req *ReviewPaymentsRequest) (*ReviewPaymentsReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	list, err := s.payments.ListNeedsReview(ctx, req.Limit)
	if err != nil {
		return nil, err
	}
	out := make([]*PaymentItem, 0, len(list))
	for _, p := range list {
		out = append(out, toPaymentItem(p))
	}
	return &ReviewPaymentsReply{Payments: out}, nil
}

// GetPayment 按订单号查询支付，用于人工对账
func (s *AdminService) GetPayment(ctx context.Context, req *OrderIDRequest) (*PaymentItem, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	p, err := s.payments.FindByOrderID(ctx, req.OrderID)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodePaymentNotFound, map[string]string{"order_id": req.OrderID})
	}
	return toPaymentItem(p), nil
}

// UpsertPricing 新增或修改套餐价格，is_active 缺省为 true
func (s *AdminService) UpsertPricing(ctx context.Context, req *UpsertPricingRequest) (*PricingItem, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	p := &biz.Pricing{
		Plan:         req.Plan,
		Price:        req.Price,
		IsActive:     req.IsActive == nil || *req.IsActive,
		Description:  req.Description,
		Features:     req.Features,
		DisplayOrder: req.DisplayOrder,
		ShowOnMain:   req.ShowOnMain != nil && *req.ShowOnMain,
		BadgeText:    req.BadgeText,
	}
	if p.Features == nil {
		p.Features = []string{}
	}
	if err := s.pricing.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return toPricingItems([]*biz.Pricing{p})[0], nil
}

func toPaymentItem(p *biz.Payment) *PaymentItem {
	return &PaymentItem{
		ID:           p.ID,
		OrderID:      p.OrderID,
		UserID:       p.UserID,
		Plan:         p.Plan,
		Amount:       p.Amount,
		TotalPayment: p.TotalPayment,
		Status:       p.Status,
		NeedsReview:  p.NeedsReview,
		CompletedAt:  formatTime(p.CompletedAt),
		Metadata:     p.Metadata,
	}
}

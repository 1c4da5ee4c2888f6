package service

import (
	"context"

	"catatuang-service/internal/biz"

	pkgUtils "github.com/gaoyong06/go-pkg/utils"
	"github.com/go-kratos/kratos/v2/log"
)

// UpgradeService 升级链接、价格页、结账和支付状态接口
type UpgradeService struct {
	tokens   *biz.UpgradeTokenUseCase
	payments *biz.PaymentUseCase
	pricing  *biz.PricingUseCase
	log      *log.Helper
}

// NewUpgradeService 创建 UpgradeService
func NewUpgradeService(tokens *biz.UpgradeTokenUseCase, payments *biz.PaymentUseCase, pricing *biz.PricingUseCase, logger log.Logger) *UpgradeService {
	return &UpgradeService{
		tokens:   tokens,
		payments: payments,
		pricing:  pricing,
		log:      log.NewHelper(logger),
	}
}

// GenerateLink 机器人为用户生成升级链接（旧令牌失效）
func (s *UpgradeService) GenerateLink(ctx context.Context, req *GenerateLinkRequest) (*GenerateLinkReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	link, err := s.tokens.GenerateLink(ctx, phoneNumber, req.Plan)
	if err != nil {
		s.log.Errorf("GenerateLink failed: phone=%s, err=%v", phoneNumber, err)
		return nil, err
	}
	return &GenerateLinkReply{
		PhoneNumber: phoneNumber,
		UpgradeURL:  link.URL,
		Token:       link.Token.Token,
		Plan:        link.Plan,
		ExpiresAt:   formatTime(&link.ExpiresAt),
	}, nil
}

// ListPricing 公开价格列表
func (s *UpgradeService) ListPricing(ctx context.Context, _ *EmptyRequest) (*PricingListReply, error) {
	list, err := s.pricing.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	return &PricingListReply{Pricings: toPricingItems(list)}, nil
}

// ValidateToken 令牌页加载时校验令牌
func (s *UpgradeService) ValidateToken(ctx context.Context, req *TokenRequest) (*ValidateTokenReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	t, u, err := s.payments.ValidateToken(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	return &ValidateTokenReply{
		Token:       t.Token,
		User:        &TokenUser{PhoneNumber: u.PhoneNumber, Name: u.Name},
		CurrentPlan: u.Plan,
	}, nil
}

// UpgradePlans 令牌对应用户可购买的套餐
func (s *UpgradeService) UpgradePlans(ctx context.Context, req *TokenRequest) (*UpgradePlansReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	u, list, err := s.payments.AvailablePlans(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	return &UpgradePlansReply{
		Token:          req.Token,
		CurrentPlan:    u.Plan,
		AvailablePlans: toPricingItems(list),
	}, nil
}

// Checkout 创建或复用 pending 支付并返回支付链接
func (s *UpgradeService) Checkout(ctx context.Context, req *CheckoutRequest) (*CheckoutReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	res, err := s.payments.Checkout(ctx, req.Token, req.Plan, pkgUtils.GetClientIP(ctx))
	if err != nil {
		s.log.Errorf("Checkout failed: plan=%s, err=%v", req.Plan, err)
		return nil, err
	}
	p := res.Payment
	return &CheckoutReply{
		Plan:         p.Plan,
		Amount:       p.Amount,
		Fee:          p.Fee,
		TotalPayment: p.TotalPayment,
		PaymentURL:   res.PaymentURL,
		OrderID:      p.OrderID,
		ExpiredAt:    formatTime(p.ExpiresAt),
		Reused:       res.Reused,
	}, nil
}

// PaymentStatus 前端轮询支付状态
func (s *UpgradeService) PaymentStatus(ctx context.Context, req *TokenRequest) (*PaymentStatusReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	v, err := s.payments.Status(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	return &PaymentStatusReply{
		Status:      v.Status,
		OrderID:     v.OrderID,
		CompletedAt: formatTime(v.CompletedAt),
		ExpiresAt:   formatTime(v.ExpiresAt),
		UsedAt:      formatTime(v.UsedAt),
	}, nil
}

// UpgradeSuccess 升级成功页
func (s *UpgradeService) UpgradeSuccess(ctx context.Context, req *TokenRequest) (*UpgradeSuccessReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	res, err := s.payments.SuccessInfo(ctx, req.Token)
	if err != nil {
		return nil, err
	}
	return &UpgradeSuccessReply{
		User:       &TokenUser{PhoneNumber: res.User.PhoneNumber, Name: res.User.Name},
		Plan:       res.Plan,
		UpgradedAt: formatTime(&res.UpgradedAt),
	}, nil
}

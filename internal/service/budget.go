package service

import (
	"context"

	"catatuang-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// BudgetService 月度预算接口
type BudgetService struct {
	uc  *biz.BudgetUseCase
	log *log.Helper
}

// NewBudgetService 创建 BudgetService
func NewBudgetService(uc *biz.BudgetUseCase, logger log.Logger) *BudgetService {
	return &BudgetService{
		uc:  uc,
		log: log.NewHelper(logger),
	}
}

// SetBudget 同月预算累加
func (s *BudgetService) SetBudget(ctx context.Context, req *BudgetSetRequest) (*BudgetReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	res, err := s.uc.Set(ctx, phoneNumber, req.BudgetAmount, req.Month, req.Year)
	if err != nil {
		s.log.Errorf("SetBudget failed: phone=%s, err=%v", phoneNumber, err)
		return nil, err
	}
	return &BudgetReply{
		PhoneNumber:  res.User.PhoneNumber,
		Month:        res.Budget.Month,
		Year:         res.Budget.Year,
		BudgetAmount: res.Budget.BudgetAmount,
		AddedAmount:  res.AddedAmount,
		IsNew:        res.IsNew,
	}, nil
}

// GetBudget 查询预算，未设置时金额为 0
func (s *BudgetService) GetBudget(ctx context.Context, req *BudgetGetRequest) (*BudgetReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	u, b, err := s.uc.Get(ctx, phoneNumber, req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	return &BudgetReply{
		PhoneNumber:  u.PhoneNumber,
		Month:        b.Month,
		Year:         b.Year,
		BudgetAmount: b.BudgetAmount,
	}, nil
}

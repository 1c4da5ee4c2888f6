package biz

import (
	"context"

	bizErrors "catatuang-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// Pricing 套餐价格（公开价格页与结账使用）
type Pricing struct {
	ID           string
	Plan         string
	Price        int64
	IsActive     bool
	Description  string
	Features     []string
	DisplayOrder int
	ShowOnMain   bool
	BadgeText    string
}

// PricingRepo 价格数据层接口
type PricingRepo interface {
	// ListActivePricings 按 display_order、plan 排序
	ListActivePricings(ctx context.Context) ([]*Pricing, error)
	GetActivePricing(ctx context.Context, plan string) (*Pricing, error)
	GetActivePricingByPrice(ctx context.Context, price int64) (*Pricing, error)
	UpsertPricing(ctx context.Context, p *Pricing) error
}

// PricingUseCase 价格查询与维护
type PricingUseCase struct {
	repo  PricingRepo
	plans *PlanPolicy
	log   *log.Helper
}

// NewPricingUseCase 创建价格 UseCase
func NewPricingUseCase(repo PricingRepo, plans *PlanPolicy, logger log.Logger) *PricingUseCase {
	return &PricingUseCase{
		repo:  repo,
		plans: plans,
		log:   log.NewHelper(logger),
	}
}

// ListPublic 公开价格列表
func (uc *PricingUseCase) ListPublic(ctx context.Context) ([]*Pricing, error) {
	list, err := uc.repo.ListActivePricings(ctx)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return list, nil
}

// AvailableForUpgrade 可购买且等级高于当前套餐的套餐，与 Checkout 的校验一致
func (uc *PricingUseCase) AvailableForUpgrade(ctx context.Context, currentPlan string) ([]*Pricing, error) {
	list, err := uc.ListPublic(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Pricing, 0, len(list))
	for _, p := range list {
		if !uc.plans.Purchasable(p.Plan) || uc.plans.Level(p.Plan) <= uc.plans.Level(currentPlan) {
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// Upsert 管理员维护价格
func (uc *PricingUseCase) Upsert(ctx context.Context, p *Pricing) error {
	if _, ok := uc.plans.Get(p.Plan); !ok {
		return bizErrors.NewBizError(bizErrors.ErrCodeUnknownPlan)
	}
	if p.Price < 0 {
		return bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{"price": "must be >= 0"})
	}
	if err := uc.repo.UpsertPricing(ctx, p); err != nil {
		return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	uc.log.Infof("pricing updated: plan=%s, price=%d, active=%v", p.Plan, p.Price, p.IsActive)
	return nil
}

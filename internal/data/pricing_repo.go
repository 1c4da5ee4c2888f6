package data

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	"catatuang-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// pricingCacheTTL 公开价格列表缓存时间
const pricingCacheTTL = 5 * time.Minute

// pricingRepo 套餐价格数据访问（公开列表走 Redis 缓存）
type pricingRepo struct {
	data *Data
	log  *log.Helper
}

// NewPricingRepo 创建价格 repo（返回 biz.PricingRepo 接口）
func NewPricingRepo(data *Data, logger log.Logger) biz.PricingRepo {
	return &pricingRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// ListActivePricings 按 display_order、plan 排序的启用价格
func (r *pricingRepo) ListActivePricings(ctx context.Context) ([]*biz.Pricing, error) {
	if cached, ok := r.getCache(ctx); ok {
		return cached, nil
	}

	var list []*model.Pricing
	err := r.data.DB(ctx).
		Where("is_active = ?", true).
		Order("display_order ASC").
		Order("plan ASC").
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	out := make([]*biz.Pricing, 0, len(list))
	for _, m := range list {
		out = append(out, toBizPricing(m))
	}
	r.setCache(ctx, out)
	return out, nil
}

func (r *pricingRepo) first(db *gorm.DB) (*biz.Pricing, error) {
	var m model.Pricing
	if err := db.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizPricing(&m), nil
}

// GetActivePricing 套餐的启用价格，不存在返回 nil
func (r *pricingRepo) GetActivePricing(ctx context.Context, plan string) (*biz.Pricing, error) {
	return r.first(r.data.DB(ctx).Where("plan = ? AND is_active = ?", plan, true))
}

// GetActivePricingByPrice 按金额匹配启用价格（回调兜底路径使用）
func (r *pricingRepo) GetActivePricingByPrice(ctx context.Context, price int64) (*biz.Pricing, error) {
	return r.first(r.data.DB(ctx).Where("price = ? AND is_active = ?", price, true).Order("display_order ASC"))
}

// UpsertPricing 按 plan 新增或覆盖价格，并清除缓存
func (r *pricingRepo) UpsertPricing(ctx context.Context, p *biz.Pricing) error {
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	if p.Features == nil {
		features = []byte("[]")
	}
	m := &model.Pricing{
		ID:           uuid.New().String(),
		Plan:         p.Plan,
		Price:        p.Price,
		IsActive:     p.IsActive,
		Description:  p.Description,
		Features:     datatypes.JSON(features),
		DisplayOrder: p.DisplayOrder,
		ShowOnMain:   p.ShowOnMain,
		BadgeText:    p.BadgeText,
	}
	err = r.data.DB(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "plan"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"price", "is_active", "description", "features", "display_order", "show_on_main", "badge_text", "updated_at",
		}),
	}).Create(m).Error
	if err != nil {
		return err
	}
	r.invalidateCache(ctx)
	return nil
}

func (r *pricingRepo) getCache(ctx context.Context) ([]*biz.Pricing, bool) {
	if r.data.rdb == nil {
		return nil, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	raw, err := r.data.rdb.Get(cacheCtx, constants.RedisKeyPricingActive).Bytes()
	if err != nil {
		return nil, false
	}
	var list []*biz.Pricing
	if err := json.Unmarshal(raw, &list); err != nil {
		r.log.Warnf("invalid pricing cache, ignoring: %v", err)
		return nil, false
	}
	return list, true
}

func (r *pricingRepo) setCache(ctx context.Context, list []*biz.Pricing) {
	if r.data.rdb == nil {
		return
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := r.data.rdb.Set(cacheCtx, constants.RedisKeyPricingActive, raw, pricingCacheTTL).Err(); err != nil {
		// 缓存更新失败不影响主流程
		r.log.Warnf("failed to update pricing cache: %v", err)
	}
}

func (r *pricingRepo) invalidateCache(ctx context.Context) {
	if r.data.rdb == nil {
		return
	}
	cacheCtx, cancel := context.WithTimeout(ctx, cacheTimeout)
	defer cancel()
	if err := r.data.rdb.Del(cacheCtx, constants.RedisKeyPricingActive).Err(); err != nil {
		r.log.Warnf("failed to invalidate pricing cache: %v", err)
	}
}

func toBizPricing(m *model.Pricing) *biz.Pricing {
	var features []string
	if len(m.Features) > 0 {
		if err := json.Unmarshal(m.Features, &features); err != nil {
			features = nil
		}
	}
	if features == nil {
		features = []string{}
	}
	return &biz.Pricing{
		ID:           m.ID,
		Plan:         m.Plan,
		Price:        m.Price,
		IsActive:     m.IsActive,
		Description:  m.Description,
		Features:     features,
		DisplayOrder: m.DisplayOrder,
		ShowOnMain:   m.ShowOnMain,
		BadgeText:    m.BadgeText,
	}
}

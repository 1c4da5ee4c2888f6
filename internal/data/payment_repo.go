package data

import (
	"context"
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

// paymentRepo 支付记录数据访问
type paymentRepo struct {
	data *Data
	log  *log.Helper
}

// NewPaymentRepo 创建支付 repo（返回 biz.PaymentRepo 接口）
func NewPaymentRepo(data *Data, logger log.Logger) biz.PaymentRepo {
	return &paymentRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreatePayment 创建支付记录，order_id 冲突返回 biz.ErrDuplicateKey
func (r *paymentRepo) CreatePayment(ctx context.Context, p *biz.Payment) error {
	m := fromBizPayment(p)
	m.ID = uuid.New().String()
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	p.UpdatedAt = m.UpdatedAt
	return nil
}

func (r *paymentRepo) first(db *gorm.DB) (*biz.Payment, error) {
	var m model.Payment
	if err := db.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return toBizPayment(&m), nil
}

// GetPaymentByOrderID 按订单号查询，不存在返回 nil
func (r *paymentRepo) GetPaymentByOrderID(ctx context.Context, orderID string) (*biz.Payment, error) {
	return r.first(r.data.DB(ctx).Where("order_id = ?", orderID))
}

// LockPaymentByOrderID SELECT ... FOR UPDATE
func (r *paymentRepo) LockPaymentByOrderID(ctx context.Context, orderID string) (*biz.Payment, error) {
	return r.first(r.data.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).Where("order_id = ?", orderID))
}

// FindPendingPayment 同一令牌、同一套餐下未过期的 pending 支付
func (r *paymentRepo) FindPendingPayment(ctx context.Context, tokenID, plan string, now time.Time) (*biz.Payment, error) {
	return r.first(r.data.DB(ctx).
		Where("upgrade_token_id = ? AND plan = ? AND status = ?", tokenID, plan, constants.PaymentStatusPending).
		Where("expires_at > ?", now).
		Order("created_at DESC"))
}

// LatestPaymentForToken 令牌下最新一条非 cancelled 的支付
func (r *paymentRepo) LatestPaymentForToken(ctx context.Context, tokenID string) (*biz.Payment, error) {
	return r.first(r.data.DB(ctx).
		Where("upgrade_token_id = ? AND status <> ?", tokenID, constants.PaymentStatusCancelled).
		Order("created_at DESC"))
}

// MarkPaymentCompleted 写入完成状态
func (r *paymentRepo) MarkPaymentCompleted(ctx context.Context, paymentID string, c *biz.PaymentCompletion) error {
	return r.data.DB(ctx).Model(&model.Payment{}).Where("id = ?", paymentID).Updates(map[string]interface{}{
		"status":            constants.PaymentStatusCompleted,
		"payment_method":    c.PaymentMethod,
		"external_order_id": c.ExternalOrderID,
		"completed_at":      c.CompletedAt,
		"needs_review":      c.NeedsReview,
		"metadata":          datatypes.JSONMap(c.Metadata),
	}).Error
}

// UpdatePaymentStatus 迁移到 failed / cancelled 等终态
func (r *paymentRepo) UpdatePaymentStatus(ctx context.Context, paymentID, status string, metadata map[string]interface{}) error {
	return r.data.DB(ctx).Model(&model.Payment{}).Where("id = ?", paymentID).Updates(map[string]interface{}{
		"status":   status,
		"metadata": datatypes.JSONMap(metadata),
	}).Error
}

// ListNeedsReview 标记为人工审核的支付，按完成时间倒序
func (r *paymentRepo) ListNeedsReview(ctx context.Context, limit int) ([]*biz.Payment, error) {
	var list []*model.Payment
	err := r.data.DB(ctx).
		Where("needs_review = ?", true).
		Order("completed_at DESC").
		Limit(limit).
		Find(&list).Error
	if err != nil {
		return nil, err
	}
	out := make([]*biz.Payment, 0, len(list))
	for _, m := range list {
		out = append(out, toBizPayment(m))
	}
	return out, nil
}

func toBizPayment(m *model.Payment) *biz.Payment {
	return &biz.Payment{
		ID:              m.ID,
		OrderID:         m.OrderID,
		UserID:          m.UserID,
		UpgradeTokenID:  m.UpgradeTokenID,
		Plan:            m.Plan,
		Amount:          m.Amount,
		Fee:             m.Fee,
		TotalPayment:    m.TotalPayment,
		Status:          m.Status,
		PaymentMethod:   m.PaymentMethod,
		ExternalOrderID: m.ExternalOrderID,
		ExpiresAt:       m.ExpiresAt,
		CompletedAt:     m.CompletedAt,
		NeedsReview:     m.NeedsReview,
		Metadata:        map[string]interface{}(m.Metadata),
		CreatedAt:       m.CreatedAt,
		UpdatedAt:       m.UpdatedAt,
	}
}

func fromBizPayment(p *biz.Payment) *model.Payment {
	return &model.Payment{
		ID:              p.ID,
		OrderID:         p.OrderID,
		UserID:          p.UserID,
		UpgradeTokenID:  p.UpgradeTokenID,
		Plan:            p.Plan,
		Amount:          p.Amount,
		Fee:             p.Fee,
		TotalPayment:    p.TotalPayment,
		Status:          p.Status,
		PaymentMethod:   p.PaymentMethod,
		ExternalOrderID: p.ExternalOrderID,
		ExpiresAt:       p.ExpiresAt,
		CompletedAt:     p.CompletedAt,
		NeedsReview:     p.NeedsReview,
		Metadata:        datatypes.JSONMap(p.Metadata),
	}
}

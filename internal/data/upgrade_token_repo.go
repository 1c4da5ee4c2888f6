package data

import (
	"context"
	"errors"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// upgradeTokenRepo 升级令牌数据访问
type upgradeTokenRepo struct {
	data *Data
	log  *log.Helper
}

// NewUpgradeTokenRepo 创建升级令牌 repo（返回 biz.UpgradeTokenRepo 接口）
func NewUpgradeTokenRepo(data *Data, logger log.Logger) biz.UpgradeTokenRepo {
	return &upgradeTokenRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// DeleteActiveTokens 删除手机号下未使用且未过期的令牌
func (r *upgradeTokenRepo) DeleteActiveTokens(ctx context.Context, phoneNumber string, now time.Time) (int64, error) {
	res := r.data.DB(ctx).
		Where("phone_number = ? AND used_at IS NULL AND expires_at > ?", phoneNumber, now).
		Delete(&model.UpgradeToken{})
	return res.RowsAffected, res.Error
}

// CreateToken 创建令牌，令牌值冲突返回 biz.ErrDuplicateKey
func (r *upgradeTokenRepo) CreateToken(ctx context.Context, t *biz.UpgradeToken) error {
	m := &model.UpgradeToken{
		ID:          uuid.New().String(),
		PhoneNumber: t.PhoneNumber,
		Token:       t.Token,
		UserID:      t.UserID,
		ExpiresAt:   t.ExpiresAt,
		UsedAt:      t.UsedAt,
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	t.ID = m.ID
	t.CreatedAt = m.CreatedAt
	return nil
}

func (r *upgradeTokenRepo) first(ctx context.Context, query string, arg interface{}) (*biz.UpgradeToken, error) {
	var m model.UpgradeToken
	if err := r.data.DB(ctx).Where(query, arg).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &biz.UpgradeToken{
		ID:          m.ID,
		PhoneNumber: m.PhoneNumber,
		Token:       m.Token,
		UserID:      m.UserID,
		ExpiresAt:   m.ExpiresAt,
		UsedAt:      m.UsedAt,
		CreatedAt:   m.CreatedAt,
	}, nil
}

// GetTokenByValue 按令牌值查询（不判断有效性），不存在返回 nil
func (r *upgradeTokenRepo) GetTokenByValue(ctx context.Context, token string) (*biz.UpgradeToken, error) {
	return r.first(ctx, "token = ?", token)
}

// MarkTokenUsed 仅更新 used_at 为空的行
func (r *upgradeTokenRepo) MarkTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) (bool, error) {
	res := r.data.DB(ctx).Model(&model.UpgradeToken{}).
		Where("id = ? AND used_at IS NULL", tokenID).
		Update("used_at", usedAt)
	return res.RowsAffected > 0, res.Error
}

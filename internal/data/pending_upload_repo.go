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
	"gorm.io/gorm"
)

// pendingUploadRepo 待确认上传数据访问
type pendingUploadRepo struct {
	data *Data
	log  *log.Helper
}

// NewPendingUploadRepo 创建待确认上传 repo（返回 biz.PendingUploadRepo 接口）
func NewPendingUploadRepo(data *Data, logger log.Logger) biz.PendingUploadRepo {
	return &pendingUploadRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CancelPending 用户所有 pending 上传置为 cancelled
func (r *pendingUploadRepo) CancelPending(ctx context.Context, userID string) (int64, error) {
	res := r.data.DB(ctx).Model(&model.PendingUpload{}).
		Where("user_id = ? AND status = ?", userID, constants.UploadStatusPending).
		Update("status", constants.UploadStatusCancelled)
	return res.RowsAffected, res.Error
}

// CreatePendingUpload 写入新上传
func (r *pendingUploadRepo) CreatePendingUpload(ctx context.Context, p *biz.PendingUpload) error {
	m := &model.PendingUpload{
		ID:            uuid.New().String(),
		UserID:        p.UserID,
		ImageURL:      p.ImageURL,
		ImagePath:     p.ImagePath,
		Status:        p.Status,
		ExtractedData: p.ExtractedData,
		ExpiresAt:     p.ExpiresAt,
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	p.ID = m.ID
	p.CreatedAt = m.CreatedAt
	return nil
}

// LatestPending 最新一条 pending 上传，不存在返回 nil
func (r *pendingUploadRepo) LatestPending(ctx context.Context, userID string) (*biz.PendingUpload, error) {
	var m model.PendingUpload
	err := r.data.DB(ctx).
		Where("user_id = ? AND status = ?", userID, constants.UploadStatusPending).
		Order("created_at DESC").
		First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &biz.PendingUpload{
		ID:            m.ID,
		UserID:        m.UserID,
		ImageURL:      m.ImageURL,
		ImagePath:     m.ImagePath,
		Status:        m.Status,
		ExtractedData: m.ExtractedData,
		ExpiresAt:     m.ExpiresAt,
		CreatedAt:     m.CreatedAt,
	}, nil
}

// TransitionStatus 条件更新，并发确认时只有一个请求能成功
func (r *pendingUploadRepo) TransitionStatus(ctx context.Context, uploadID, from, to string) (bool, error) {
	res := r.data.DB(ctx).Model(&model.PendingUpload{}).
		Where("id = ? AND status = ?", uploadID, from).
		Update("status", to)
	return res.RowsAffected > 0, res.Error
}

// ExpireStale 已超时的 pending 上传置为 expired
func (r *pendingUploadRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res := r.data.DB(ctx).Model(&model.PendingUpload{}).
		Where("status = ? AND expires_at <= ?", constants.UploadStatusPending, now).
		Update("status", constants.UploadStatusExpired)
	return res.RowsAffected, res.Error
}

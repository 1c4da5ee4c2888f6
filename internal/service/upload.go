package service

import (
	"context"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// UploadService 小票图片的登记与确认
type UploadService struct {
	uc    *biz.PendingUploadUseCase
	clock biz.Clock
	loc   *time.Location
	log   *log.Helper
}

// NewUploadService 创建 UploadService
func NewUploadService(uc *biz.PendingUploadUseCase, clock biz.Clock, logger log.Logger) *UploadService {
	return &UploadService{
		uc:    uc,
		clock: clock,
		loc:   clock.Now().Location(),
		log:   log.NewHelper(logger),
	}
}

// Create 登记新上传，之前未确认的上传被取消
func (s *UploadService) Create(ctx context.Context, req *CreateUploadRequest) (*UploadReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	p, u, err := s.uc.Create(ctx, phoneNumber, req.ImageURL, req.ImagePath, req.ExtractedData)
	if err != nil {
		s.log.Errorf("CreateUpload failed: phone=%s, err=%v", phoneNumber, err)
		return nil, err
	}
	return s.toUploadReply(p, u), nil
}

// Pending 当前等待确认的上传
func (s *UploadService) Pending(ctx context.Context, req *PhoneRequest) (*UploadReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	p, u, err := s.uc.Pending(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	return s.toUploadReply(p, u), nil
}

// Confirm 确认最新的上传并记账，占用一次小票额度
func (s *UploadService) Confirm(ctx context.Context, req *ConfirmUploadRequest) (*ConfirmUploadReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	in := &biz.UploadConfirmation{
		Type:        req.TransactionType,
		Amount:      req.Amount,
		Description: req.Description,
	}
	if req.Tanggal != "" {
		if in.Tanggal, err = time.ParseInLocation(constants.TimeFormatDate, req.Tanggal, s.loc); err != nil {
			return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{
				"tanggal": "must be a date in YYYY-MM-DD format",
			})
		}
	}
	res, err := s.uc.Confirm(ctx, phoneNumber, in)
	if err != nil {
		return nil, err
	}
	return &ConfirmUploadReply{
		UploadID:    res.Upload.ID,
		Transaction: toTransactionView(res.Record, s.loc),
		Struk:       res.Struk,
	}, nil
}

func (s *UploadService) toUploadReply(p *biz.PendingUpload, u *biz.User) *UploadReply {
	left := int64(p.ExpiresAt.Sub(s.clock.Now()) / time.Second)
	if left < 0 {
		left = 0
	}
	return &UploadReply{
		ID:               p.ID,
		PhoneNumber:      u.PhoneNumber,
		ImageURL:         p.ImageURL,
		ImagePath:        p.ImagePath,
		Status:           p.Status,
		ExtractedData:    p.ExtractedData,
		ExpiresAt:        formatTime(&p.ExpiresAt),
		ExpiresInSeconds: left,
		ResponseStyle:    u.ResponseStyle,
	}
}

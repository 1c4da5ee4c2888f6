package service

import (
	"context"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// QuotaService 聊天/小票额度与批量记账接口
type QuotaService struct {
	quota   *biz.QuotaUseCase
	records *biz.TransactionRecordUseCase
	subs    *biz.SubscriptionUseCase
	loc     *time.Location
	log     *log.Helper
}

// NewQuotaService 创建 QuotaService
func NewQuotaService(quota *biz.QuotaUseCase, records *biz.TransactionRecordUseCase, subs *biz.SubscriptionUseCase, clock biz.Clock, logger log.Logger) *QuotaService {
	return &QuotaService{
		quota:   quota,
		records: records,
		subs:    subs,
		loc:     clock.Now().Location(),
		log:     log.NewHelper(logger),
	}
}

// IncrementChat 消耗一次聊天额度，超额时返回 429
func (s *QuotaService) IncrementChat(ctx context.Context, req *PhoneRequest) (*QuotaReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	st, err := s.quota.IncrementChat(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	return &QuotaReply{PhoneNumber: phoneNumber, Plan: st.Plan, Quota: st}, nil
}

// CanUse 只检查不扣减，counter 缺省为 chat
func (s *QuotaService) CanUse(ctx context.Context, req *CanUseRequest) (*QuotaReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	var st *biz.QuotaStatus
	if req.Counter == constants.CounterStruk {
		st, err = s.quota.CanUseStruk(ctx, phoneNumber)
	} else {
		st, err = s.quota.CanUseChat(ctx, phoneNumber)
	}
	if err != nil {
		return nil, err
	}
	return &QuotaReply{PhoneNumber: phoneNumber, Plan: st.Plan, Quota: st}, nil
}

// GetLimits 查询两个计数器（跨月时先重置）
func (s *QuotaService) GetLimits(ctx context.Context, req *PhoneRequest) (*LimitsReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	u, chat, struk, err := s.quota.Limits(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	return &LimitsReply{
		PhoneNumber:        u.PhoneNumber,
		Plan:               u.Plan,
		SubscriptionActive: s.subs.IsSubscriptionActive(u),
		Chat:               chat,
		Struk:              struk,
	}, nil
}

// ConsumeUpload 上传小票前扣减 count 个小票额度（全部或全不）
func (s *QuotaService) ConsumeUpload(ctx context.Context, req *ConsumeUploadRequest) (*QuotaReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	var st *biz.QuotaStatus
	if req.Count <= 1 {
		st, err = s.quota.IncrementStruk(ctx, phoneNumber)
	} else {
		st, err = s.quota.Consume(ctx, phoneNumber, constants.CounterStruk, req.Count)
	}
	if err != nil {
		return nil, err
	}
	return &QuotaReply{PhoneNumber: phoneNumber, Plan: st.Plan, Quota: st}, nil
}

// BatchTransactions 批量记账，receipt 来源的记录消耗小票额度
func (s *QuotaService) BatchTransactions(ctx context.Context, req *BatchTransactionsRequest) (*BatchTransactionsReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	records := make([]*biz.TransactionRecord, 0, len(req.Transactions))
	for i, item := range req.Transactions {
		tanggal, err := time.ParseInLocation(constants.TimeFormatDate, item.Tanggal, s.loc)
		if err != nil {
			return nil, invalidTanggal(i)
		}
		records = append(records, &biz.TransactionRecord{
			Tanggal:     tanggal,
			Amount:      item.Amount,
			Description: item.Description,
			Category:    item.Category,
			Type:        item.Type,
			Source:      item.Source,
		})
	}

	res, err := s.records.RecordBatch(ctx, phoneNumber, records)
	if err != nil {
		s.log.Errorf("BatchTransactions failed: phone=%s, count=%d, err=%v", phoneNumber, len(records), err)
		return nil, err
	}
	ids := make([]string, 0, len(res.Records))
	for _, r := range res.Records {
		ids = append(ids, r.ID)
	}
	return &BatchTransactionsReply{
		CreatedCount:   len(ids),
		TransactionIDs: ids,
		PhoneNumber:    res.User.PhoneNumber,
		Struk:          res.Struk,
	}, nil
}

package biz

import (
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// PendingUpload 等待用户确认的小票图片
type PendingUpload struct {
	ID            string
	UserID        string
	ImageURL      string
	ImagePath     string
	Status        string
	ExtractedData map[string]interface{}
	ExpiresAt     time.Time
	CreatedAt     time.Time
}

// IsExpired expires_at 不晚于 now 即视为过期
func (p *PendingUpload) IsExpired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}

// PendingUploadRepo 待确认上传数据层接口
type PendingUploadRepo interface {
	// CancelPending 用户所有 pending 上传置为 cancelled
	CancelPending(ctx context.Context, userID string) (int64, error)
	CreatePendingUpload(ctx context.Context, p *PendingUpload) error
	// LatestPending 最新一条 pending 上传，不存在返回 nil
	LatestPending(ctx context.Context, userID string) (*PendingUpload, error)
	// TransitionStatus 仅当前状态为 from 时更新，返回是否更新
	TransitionStatus(ctx context.Context, uploadID, from, to string) (bool, error)
	// ExpireStale 已超时的 pending 上传置为 expired
	ExpireStale(ctx context.Context, now time.Time) (int64, error)
}

// UploadConfirmation 用户确认时补充的信息，Amount 为 0 时取识别结果
type UploadConfirmation struct {
	Type        string
	Amount      int64
	Description string
	Tanggal     time.Time
}

// UploadConfirmResult 确认结果
type UploadConfirmResult struct {
	Upload *PendingUpload
	Record *TransactionRecord
	Struk  *QuotaStatus
}

// PendingUploadUseCase 图片上传 -> 用户确认 -> 记账，确认时占用一次小票额度
type PendingUploadUseCase struct {
	repo    PendingUploadRepo
	records TransactionRecordRepo
	users   *UserUseCase
	quota   *QuotaUseCase
	tx      Transaction
	clock   Clock
	conf    *ServiceConfig
	log     *log.Helper
	metrics *metrics.CatatUangMetrics
}

// NewPendingUploadUseCase 创建上传确认 UseCase
func NewPendingUploadUseCase(
	repo PendingUploadRepo,
	records TransactionRecordRepo,
	users *UserUseCase,
	quota *QuotaUseCase,
	tx Transaction,
	clock Clock,
	conf *ServiceConfig,
	logger log.Logger,
) *PendingUploadUseCase {
	return &PendingUploadUseCase{
		repo:    repo,
		records: records,
		users:   users,
		quota:   quota,
		tx:      tx,
		clock:   clock,
		conf:    conf,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Create 登记新上传，同一用户之前未确认的上传全部取消
func (uc *PendingUploadUseCase) Create(ctx context.Context, phoneNumber, imageURL, imagePath string, extracted map[string]interface{}) (*PendingUpload, *User, error) {
	u, err := uc.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, nil, err
	}
	p := &PendingUpload{
		UserID:        u.ID,
		ImageURL:      imageURL,
		ImagePath:     imagePath,
		Status:        constants.UploadStatusPending,
		ExtractedData: extracted,
		ExpiresAt:     uc.clock.Now().Add(uc.conf.UploadTTL),
	}
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		cancelled, err := uc.repo.CancelPending(ctx, u.ID)
		if err != nil {
			return err
		}
		if cancelled > 0 {
			uc.log.Infof("cancelled %d previous pending upload(s): user_id=%s", cancelled, u.ID)
		}
		return uc.repo.CreatePendingUpload(ctx, p)
	})
	if err != nil {
		return nil, nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	uc.count("created")
	return p, u, nil
}

// Pending 当前等待确认的上传；已超时的顺便标记为 expired 并返回 410
func (uc *PendingUploadUseCase) Pending(ctx context.Context, phoneNumber string) (*PendingUpload, *User, error) {
	u, err := uc.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, nil, err
	}
	p, err := uc.latest(ctx, u.ID)
	if err != nil {
		return nil, nil, err
	}
	return p, u, nil
}

// Confirm 把最新的待确认上传记成一笔 receipt 交易。
// 状态迁移、交易写入和小票额度扣减在同一个临界区内完成。
func (uc *PendingUploadUseCase) Confirm(ctx context.Context, phoneNumber string, in *UploadConfirmation) (*UploadConfirmResult, error) {
	if in.Type != constants.TransactionTypeIncome && in.Type != constants.TransactionTypeExpense {
		return nil, invalidField("transaction_type", "must be income or expense")
	}
	u, err := uc.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	p, err := uc.latest(ctx, u.ID)
	if err != nil {
		return nil, err
	}

	record := &TransactionRecord{
		Amount:      in.Amount,
		Description: strings.TrimSpace(in.Description),
		Type:        in.Type,
		Category:    DefaultCategory,
		Source:      constants.TransactionSourceReceipt,
	}
	if record.Amount <= 0 {
		record.Amount = extractedAmount(p.ExtractedData)
	}
	if record.Amount <= 0 {
		return nil, invalidField("amount", "amount not found in the image, enter it manually")
	}
	if record.Description == "" {
		record.Description = extractedString(p.ExtractedData, "description")
	}
	if record.Description == "" {
		record.Description = constants.DefaultUploadDescription
	}
	if c := extractedString(p.ExtractedData, "category"); validCategory(c) {
		record.Category = c
	}
	today := StartOfDay(uc.clock.Now())
	if in.Tanggal.IsZero() {
		record.Tanggal = today
	} else {
		record.Tanggal = StartOfDay(in.Tanggal.In(today.Location()))
	}

	st, err := uc.quota.WithQuota(ctx, u.PhoneNumber, constants.CounterStruk, 1, func(ctx context.Context, locked *User) error {
		ok, err := uc.repo.TransitionStatus(ctx, p.ID, constants.UploadStatusPending, constants.UploadStatusConfirmed)
		if err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		if !ok {
			return bizErrors.NewBizError(bizErrors.ErrCodePendingUploadConflict)
		}
		record.UserID = locked.ID
		if err := uc.records.CreateRecords(ctx, []*TransactionRecord{record}); err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	p.Status = constants.UploadStatusConfirmed
	uc.count("confirmed")
	uc.log.Infof("upload confirmed: user_id=%s, upload_id=%s, amount=%d, type=%s", u.ID, p.ID, record.Amount, record.Type)
	return &UploadConfirmResult{Upload: p, Record: record, Struk: st}, nil
}

// ExpireStale 定时清理超时未确认的上传
func (uc *PendingUploadUseCase) ExpireStale(ctx context.Context) (int64, error) {
	n, err := uc.repo.ExpireStale(ctx, uc.clock.Now())
	if err != nil {
		return 0, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if n > 0 && uc.metrics != nil {
		uc.metrics.UploadTotal.WithLabelValues("expired").Add(float64(n))
	}
	return n, nil
}

// latest 最新的 pending 上传：不存在 404，已超时标记 expired 后 410
func (uc *PendingUploadUseCase) latest(ctx context.Context, userID string) (*PendingUpload, error) {
	p, err := uc.repo.LatestPending(ctx, userID)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if p == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodePendingUploadNotFound)
	}
	if p.IsExpired(uc.clock.Now()) {
		if _, err := uc.repo.TransitionStatus(ctx, p.ID, constants.UploadStatusPending, constants.UploadStatusExpired); err != nil {
			return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		uc.count("expired")
		return nil, bizErrors.NewBizError(bizErrors.ErrCodePendingUploadExpired)
	}
	return p, nil
}

func (uc *PendingUploadUseCase) count(result string) {
	if uc.metrics != nil {
		uc.metrics.UploadTotal.WithLabelValues(result).Inc()
	}
}

// extractedAmount 识别结果里的 amount，支持数字和数字字符串
func extractedAmount(md map[string]interface{}) int64 {
	switch v := md["amount"].(type) {
	case float64:
		return int64(math.Round(v))
	case int:
		return int64(v)
	case int64:
		return v
	case json.Number:
		n, _ := v.Int64()
		return n
	case string:
		n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		return n
	}
	return 0
}

func extractedString(md map[string]interface{}, key string) string {
	s, _ := md[key].(string)
	return strings.TrimSpace(s)
}

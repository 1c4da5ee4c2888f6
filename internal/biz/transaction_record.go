package biz

import (
	"context"
	"strconv"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// MaxBatchSize 单次批量写入的交易上限
const MaxBatchSize = 100

// DefaultCategory 未指定分类时使用
const DefaultCategory = "Lainnya"

// Categories 允许的交易分类
var Categories = []string{"Makan", "Minuman", "Transport", "Belanja", "Hiburan", "Kesehatan", "Tagihan", DefaultCategory}

// TransactionRecord 一笔记账记录，receipt 来源的记录消耗小票额度
type TransactionRecord struct {
	ID          string
	UserID      string
	Tanggal     time.Time
	Amount      int64
	Description string
	Category    string
	Type        string
	Source      string
	CreatedAt   time.Time
}

// TransactionRecordRepo 交易记录数据层接口
type TransactionRecordRepo interface {
	CreateRecords(ctx context.Context, records []*TransactionRecord) error
	// ListRecords 按 tanggal、created_at 倒序
	ListRecords(ctx context.Context, f *RecordFilter) ([]*TransactionRecord, error)
}

// BatchResult 批量写入结果
type BatchResult struct {
	User    *User
	Records []*TransactionRecord
	Struk   *QuotaStatus
}

// TransactionRecordUseCase 批量记账，receipt 数量整批占用小票额度
type TransactionRecordUseCase struct {
	repo  TransactionRecordRepo
	users *UserUseCase
	quota *QuotaUseCase
	clock Clock
	log   *log.Helper
}

// NewTransactionRecordUseCase 创建记账 UseCase
func NewTransactionRecordUseCase(repo TransactionRecordRepo, users *UserUseCase, quota *QuotaUseCase, clock Clock, logger log.Logger) *TransactionRecordUseCase {
	return &TransactionRecordUseCase{
		repo:  repo,
		users: users,
		quota: quota,
		clock: clock,
		log:   log.NewHelper(logger),
	}
}

// RecordBatch 写入一批交易：全部写入并扣减小票额度，或者全部拒绝
func (uc *TransactionRecordUseCase) RecordBatch(ctx context.Context, phoneNumber string, records []*TransactionRecord) (*BatchResult, error) {
	if len(records) == 0 || len(records) > MaxBatchSize {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{
			"transactions": "must contain 1-" + strconv.Itoa(MaxBatchSize) + " items",
		})
	}
	receipts, err := uc.normalize(records)
	if err != nil {
		return nil, err
	}

	u, _, err := uc.users.FindOrCreate(ctx, phoneNumber, "")
	if err != nil {
		return nil, err
	}

	st, err := uc.quota.WithQuota(ctx, u.PhoneNumber, constants.CounterStruk, receipts, func(ctx context.Context, locked *User) error {
		for _, r := range records {
			r.UserID = locked.ID
		}
		if err := uc.repo.CreateRecords(ctx, records); err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		u = locked
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Infof("transactions recorded: user_id=%s, count=%d, receipts=%d", u.ID, len(records), receipts)
	return &BatchResult{User: u, Records: records, Struk: st}, nil
}

// normalize 校验并补默认值，返回 receipt 数量
func (uc *TransactionRecordUseCase) normalize(records []*TransactionRecord) (int, error) {
	today := StartOfDay(uc.clock.Now())
	receipts := 0
	for i, r := range records {
		field := "transactions." + strconv.Itoa(i)
		if r == nil {
			return 0, invalidField(field, "is required")
		}
		if r.Amount <= 0 {
			return 0, invalidField(field+".amount", "must be > 0")
		}
		if r.Description == "" {
			return 0, invalidField(field+".description", "is required")
		}
		if r.Type != constants.TransactionTypeIncome && r.Type != constants.TransactionTypeExpense {
			return 0, invalidField(field+".type", "must be income or expense")
		}
		if r.Category == "" {
			r.Category = DefaultCategory
		} else if !validCategory(r.Category) {
			return 0, invalidField(field+".category", "unknown category")
		}
		switch r.Source {
		case "":
			r.Source = constants.TransactionSourceText
		case constants.TransactionSourceText:
		case constants.TransactionSourceReceipt:
			receipts++
		default:
			return 0, invalidField(field+".source", "must be text or receipt")
		}
		if r.Tanggal.IsZero() {
			r.Tanggal = today
		} else {
			r.Tanggal = StartOfDay(r.Tanggal.In(today.Location()))
		}
	}
	return receipts, nil
}

func validCategory(c string) bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

func invalidField(field, msg string) error {
	return bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{field: msg})
}

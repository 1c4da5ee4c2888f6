package data

import (
	"context"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// transactionRecordRepo 记账交易数据访问
type transactionRecordRepo struct {
	data *Data
	log  *log.Helper
}

// NewTransactionRecordRepo 创建交易 repo（返回 biz.TransactionRecordRepo 接口）
func NewTransactionRecordRepo(data *Data, logger log.Logger) biz.TransactionRecordRepo {
	return &transactionRecordRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

// CreateRecords 批量写入（调用方负责事务）
func (r *transactionRecordRepo) CreateRecords(ctx context.Context, records []*biz.TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	list := make([]*model.Transaction, 0, len(records))
	for _, t := range records {
		list = append(list, &model.Transaction{
			ID:          uuid.New().String(),
			UserID:      t.UserID,
			Tanggal:     t.Tanggal,
			Amount:      t.Amount,
			Description: t.Description,
			Category:    t.Category,
			Type:        t.Type,
			Source:      t.Source,
		})
	}
	if err := r.data.DB(ctx).CreateInBatches(list, 100).Error; err != nil {
		return err
	}
	for i, m := range list {
		records[i].ID = m.ID
		records[i].CreatedAt = m.CreatedAt
	}
	return nil
}

// ListRecords 按条件查询，tanggal、created_at 倒序
func (r *transactionRecordRepo) ListRecords(ctx context.Context, f *biz.RecordFilter) ([]*biz.TransactionRecord, error) {
	db := r.data.DB(ctx).Where("user_id = ?", f.UserID)
	if !f.From.IsZero() {
		db = db.Where("tanggal >= ?", f.From)
	}
	if !f.To.IsZero() {
		db = db.Where("tanggal < ?", f.To)
	}
	if f.Type != "" {
		db = db.Where("type = ?", f.Type)
	}
	if f.Category != "" {
		db = db.Where("category = ?", f.Category)
	}
	var list []*model.Transaction
	if err := db.Order("tanggal DESC").Order("created_at DESC").Find(&list).Error; err != nil {
		return nil, err
	}
	out := make([]*biz.TransactionRecord, 0, len(list))
	for _, m := range list {
		out = append(out, &biz.TransactionRecord{
			ID:          m.ID,
			UserID:      m.UserID,
			Tanggal:     m.Tanggal,
			Amount:      m.Amount,
			Description: m.Description,
			Category:    m.Category,
			Type:        m.Type,
			Source:      m.Source,
			CreatedAt:   m.CreatedAt,
		})
	}
	return out, nil
}

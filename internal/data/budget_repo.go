package data

import (
	"context"
	"errors"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/data/model"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// budgetRepo 月度预算数据访问
type budgetRepo struct {
	data *Data
	log  *log.Helper
}

// NewBudgetRepo 创建预算 repo（返回 biz.BudgetRepo 接口）
func NewBudgetRepo(data *Data, logger log.Logger) biz.BudgetRepo {
	return &budgetRepo{
		data: data,
		log:  log.NewHelper(logger),
	}
}

func (r *budgetRepo) first(db *gorm.DB, userID string, month, year int) (*biz.Budget, error) {
	var m model.Budget
	err := db.Where("user_id = ? AND month = ? AND year = ?", userID, month, year).First(&m).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &biz.Budget{
		ID:           m.ID,
		UserID:       m.UserID,
		Month:        m.Month,
		Year:         m.Year,
		BudgetAmount: m.BudgetAmount,
	}, nil
}

// LockBudget SELECT ... FOR UPDATE，不存在返回 nil
func (r *budgetRepo) LockBudget(ctx context.Context, userID string, month, year int) (*biz.Budget, error) {
	return r.first(r.data.DB(ctx).Clauses(clause.Locking{Strength: "UPDATE"}), userID, month, year)
}

// GetBudget 查询预算，不存在返回 nil
func (r *budgetRepo) GetBudget(ctx context.Context, userID string, month, year int) (*biz.Budget, error) {
	return r.first(r.data.DB(ctx), userID, month, year)
}

// CreateBudget 创建预算
func (r *budgetRepo) CreateBudget(ctx context.Context, b *biz.Budget) error {
	m := &model.Budget{
		ID:           uuid.New().String(),
		UserID:       b.UserID,
		Month:        b.Month,
		Year:         b.Year,
		BudgetAmount: b.BudgetAmount,
	}
	if err := r.data.DB(ctx).Create(m).Error; err != nil {
		return translateError(err)
	}
	b.ID = m.ID
	return nil
}

// AddBudgetAmount 在数据库侧累加，避免读改写丢失更新
func (r *budgetRepo) AddBudgetAmount(ctx context.Context, budgetID string, amount int64) error {
	return r.data.DB(ctx).Model(&model.Budget{}).Where("id = ?", budgetID).
		Update("budget_amount", gorm.Expr("budget_amount + ?", amount)).Error
}

package biz

import (
	"context"

	bizErrors "catatuang-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
)

// Budget 用户某月预算（累加语义）
type Budget struct {
	ID           string
	UserID       string
	Month        int
	Year         int
	BudgetAmount int64
}

// BudgetResult 设置预算后的结果
type BudgetResult struct {
	User        *User
	Budget      *Budget
	AddedAmount int64
	IsNew       bool
}

// BudgetRepo 预算数据层接口
type BudgetRepo interface {
	// LockBudget 需在事务内调用
	LockBudget(ctx context.Context, userID string, month, year int) (*Budget, error)
	GetBudget(ctx context.Context, userID string, month, year int) (*Budget, error)
	CreateBudget(ctx context.Context, b *Budget) error
	AddBudgetAmount(ctx context.Context, budgetID string, amount int64) error
}

// BudgetUseCase 预算台账
type BudgetUseCase struct {
	repo     BudgetRepo
	userRepo UserRepo
	tx       Transaction
	clock    Clock
	log      *log.Helper
}

// NewBudgetUseCase 创建预算 UseCase
func NewBudgetUseCase(repo BudgetRepo, userRepo UserRepo, tx Transaction, clock Clock, logger log.Logger) *BudgetUseCase {
	return &BudgetUseCase{
		repo:     repo,
		userRepo: userRepo,
		tx:       tx,
		clock:    clock,
		log:      log.NewHelper(logger),
	}
}

// period 月份/年份缺省为当前月
func (uc *BudgetUseCase) period(month, year int) (int, int, error) {
	now := uc.clock.Now()
	if month == 0 {
		month = int(now.Month())
	}
	if year == 0 {
		year = now.Year()
	}
	if month < 1 || month > 12 || year < 2020 || year > 2100 {
		return 0, 0, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeInvalidBudgetPeriod, map[string]string{
			"month": "must be 1-12",
			"year":  "must be 2020-2100",
		})
	}
	return month, year, nil
}

// Set 设置预算：同一 (用户, 月, 年) 已存在时累加而不是覆盖。
// 用户行锁串行化同一用户的并发设置，两次调用的金额都会计入。
func (uc *BudgetUseCase) Set(ctx context.Context, phoneNumber string, amount int64, month, year int) (*BudgetResult, error) {
	month, year, err := uc.period(month, year)
	if err != nil {
		return nil, err
	}
	if amount < 0 {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{
			"budget_amount": "must be >= 0",
		})
	}

	var result BudgetResult
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := uc.userRepo.LockUserByPhone(ctx, phoneNumber)
		if err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		if u == nil {
			return bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
		}

		b, err := uc.repo.LockBudget(ctx, u.ID, month, year)
		if err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		if b != nil {
			if err := uc.repo.AddBudgetAmount(ctx, b.ID, amount); err != nil {
				return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
			}
			b.BudgetAmount += amount
		} else {
			b = &Budget{UserID: u.ID, Month: month, Year: year, BudgetAmount: amount}
			if err := uc.repo.CreateBudget(ctx, b); err != nil {
				return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
			}
			result.IsNew = true
		}
		result.User = u
		result.Budget = b
		result.AddedAmount = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	uc.log.Infof("budget set: user_id=%s, period=%d-%02d, added=%d, total=%d",
		result.User.ID, year, month, amount, result.Budget.BudgetAmount)
	return &result, nil
}

// Get 查询预算，不存在时返回金额为 0 的预算（Budget.ID 为空）
func (uc *BudgetUseCase) Get(ctx context.Context, phoneNumber string, month, year int) (*User, *Budget, error) {
	month, year, err := uc.period(month, year)
	if err != nil {
		return nil, nil, err
	}
	u, err := uc.userRepo.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return nil, nil, bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}
	b, err := uc.repo.GetBudget(ctx, u.ID, month, year)
	if err != nil {
		return nil, nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if b == nil {
		b = &Budget{UserID: u.ID, Month: month, Year: year}
	}
	return u, b, nil
}

package biz

import (
	"context"
	"math"
	"sort"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/jinzhu/now"
)

// RecordFilter 交易查询条件，From/To 为 [From, To) 的日期区间，空字段不过滤
type RecordFilter struct {
	UserID   string
	From     time.Time
	To       time.Time
	Type     string
	Category string
}

// DaySummary 某一天的交易与合计
type DaySummary struct {
	Date         time.Time
	Records      []*TransactionRecord
	TotalExpense int64
	TotalIncome  int64
}

// MonthBalance 某月收支
type MonthBalance struct {
	Period       time.Time
	TotalIncome  int64
	TotalExpense int64
	Net          int64
}

// CategoryStat 单个分类的支出统计，Percentage 保留一位小数
type CategoryStat struct {
	Category   string
	Total      int64
	Count      int
	Percentage float64
}

// CategoryStatistics 某月按分类的支出统计，按 Total 降序
type CategoryStatistics struct {
	Period       time.Time
	Stats        []*CategoryStat
	TotalExpense int64
}

// CategorySummary 某月某分类的交易明细
type CategorySummary struct {
	Period       time.Time
	Category     string
	Records      []*TransactionRecord
	Total        int64
	TotalExpense int64
	TotalIncome  int64
}

// SummaryUseCase 记账汇总，仅对订阅有效的用户开放
type SummaryUseCase struct {
	records TransactionRecordRepo
	users   *UserUseCase
	subs    *SubscriptionUseCase
	clock   Clock
	log     *log.Helper
}

// NewSummaryUseCase 创建汇总 UseCase
func NewSummaryUseCase(records TransactionRecordRepo, users *UserUseCase, subs *SubscriptionUseCase, clock Clock, logger log.Logger) *SummaryUseCase {
	return &SummaryUseCase{
		records: records,
		users:   users,
		subs:    subs,
		clock:   clock,
		log:     log.NewHelper(logger),
	}
}

// Today 今天的交易（按创建时间倒序）与收支合计，action 用于过期提示
func (uc *SummaryUseCase) Today(ctx context.Context, phoneNumber, action string) (*DaySummary, error) {
	u, err := uc.activeUser(ctx, phoneNumber, action)
	if err != nil {
		return nil, err
	}
	today := StartOfDay(uc.clock.Now())
	list, err := uc.list(ctx, &RecordFilter{UserID: u.ID, From: today, To: AddDays(today, 1)})
	if err != nil {
		return nil, err
	}
	income, expense := totals(list)
	return &DaySummary{Date: today, Records: list, TotalExpense: expense, TotalIncome: income}, nil
}

// MonthBalance 本月收入、支出与结余
func (uc *SummaryUseCase) MonthBalance(ctx context.Context, phoneNumber string) (*MonthBalance, error) {
	u, err := uc.activeUser(ctx, phoneNumber, constants.ActionCekSaldo)
	if err != nil {
		return nil, err
	}
	from := now.With(uc.clock.Now()).BeginningOfMonth()
	list, err := uc.list(ctx, &RecordFilter{UserID: u.ID, From: from, To: from.AddDate(0, 1, 0)})
	if err != nil {
		return nil, err
	}
	income, expense := totals(list)
	return &MonthBalance{Period: from, TotalIncome: income, TotalExpense: expense, Net: income - expense}, nil
}

// StatisticsByCategory 指定月份（0 为当月）的支出按分类汇总
func (uc *SummaryUseCase) StatisticsByCategory(ctx context.Context, phoneNumber string, month, year int) (*CategoryStatistics, error) {
	from, err := uc.period(month, year)
	if err != nil {
		return nil, err
	}
	u, err := uc.activeUser(ctx, phoneNumber, constants.ActionRekapDetail)
	if err != nil {
		return nil, err
	}
	list, err := uc.list(ctx, &RecordFilter{
		UserID: u.ID,
		From:   from,
		To:     from.AddDate(0, 1, 0),
		Type:   constants.TransactionTypeExpense,
	})
	if err != nil {
		return nil, err
	}

	_, total := totals(list)
	byCategory := make(map[string]*CategoryStat)
	stats := make([]*CategoryStat, 0)
	for _, r := range list {
		c := r.Category
		if c == "" {
			c = DefaultCategory
		}
		st, ok := byCategory[c]
		if !ok {
			st = &CategoryStat{Category: c}
			byCategory[c] = st
			stats = append(stats, st)
		}
		st.Total += r.Amount
		st.Count++
	}
	for _, st := range stats {
		if total > 0 {
			st.Percentage = math.Round(float64(st.Total)/float64(total)*1000) / 10
		}
	}
	sort.SliceStable(stats, func(i, j int) bool {
		if stats[i].Total != stats[j].Total {
			return stats[i].Total > stats[j].Total
		}
		return stats[i].Category < stats[j].Category
	})
	return &CategoryStatistics{Period: from, Stats: stats, TotalExpense: total}, nil
}

// ByCategory 指定月份（0 为当月）某分类的交易，按日期、创建时间倒序
func (uc *SummaryUseCase) ByCategory(ctx context.Context, phoneNumber, category string, month, year int) (*CategorySummary, error) {
	if !validCategory(category) {
		return nil, invalidField("category", "unknown category")
	}
	from, err := uc.period(month, year)
	if err != nil {
		return nil, err
	}
	u, err := uc.activeUser(ctx, phoneNumber, constants.ActionRekapDetail)
	if err != nil {
		return nil, err
	}
	list, err := uc.list(ctx, &RecordFilter{UserID: u.ID, From: from, To: from.AddDate(0, 1, 0), Category: category})
	if err != nil {
		return nil, err
	}
	income, expense := totals(list)
	return &CategorySummary{
		Period:       from,
		Category:     category,
		Records:      list,
		Total:        income + expense,
		TotalExpense: expense,
		TotalIncome:  income,
	}, nil
}

// activeUser 用户必须存在且订阅有效，过期时带上套餐和回复风格供机器人渲染提示
func (uc *SummaryUseCase) activeUser(ctx context.Context, phoneNumber, action string) (*User, error) {
	u, err := uc.users.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if !uc.subs.IsSubscriptionActive(u) {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeSubscriptionExpired, map[string]string{
			"current_plan":   u.Plan,
			"response_style": u.ResponseStyle,
			"action":         action,
		})
	}
	return u, nil
}

// period month/year 为 0 时取当前值
func (uc *SummaryUseCase) period(month, year int) (time.Time, error) {
	current := uc.clock.Now()
	if month == 0 {
		month = int(current.Month())
	}
	if year == 0 {
		year = current.Year()
	}
	if month < 1 || month > 12 {
		return time.Time{}, invalidField("month", "must be 1-12")
	}
	if year < 2020 || year > 2100 {
		return time.Time{}, invalidField("year", "must be 2020-2100")
	}
	return time.Date(year, time.Month(month), 1, 0, 0, 0, 0, current.Location()), nil
}

func (uc *SummaryUseCase) list(ctx context.Context, f *RecordFilter) ([]*TransactionRecord, error) {
	list, err := uc.records.ListRecords(ctx, f)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return list, nil
}

func totals(list []*TransactionRecord) (income, expense int64) {
	for _, r := range list {
		switch r.Type {
		case constants.TransactionTypeIncome:
			income += r.Amount
		case constants.TransactionTypeExpense:
			expense += r.Amount
		}
	}
	return income, expense
}

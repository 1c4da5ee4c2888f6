package service

import (
	"context"
	"strconv"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

var monthNames = [...]string{
	"Januari", "Februari", "Maret", "April", "Mei", "Juni",
	"Juli", "Agustus", "September", "Oktober", "November", "Desember",
}

// periodLabel 例如 "Januari 2024"
func periodLabel(t time.Time) string {
	return monthNames[t.Month()-1] + " " + strconv.Itoa(t.Year())
}

// SummaryService 机器人查询记账汇总
type SummaryService struct {
	uc  *biz.SummaryUseCase
	loc *time.Location
	log *log.Helper
}

// NewSummaryService 创建 SummaryService
func NewSummaryService(uc *biz.SummaryUseCase, clock biz.Clock, logger log.Logger) *SummaryService {
	return &SummaryService{
		uc:  uc,
		loc: clock.Now().Location(),
		log: log.NewHelper(logger),
	}
}

// Today 今日收支合计
func (s *SummaryService) Today(ctx context.Context, req *PhoneRequest) (*TodaySummaryReply, error) {
	return s.today(ctx, req, constants.ActionRekapHariIni, false)
}

// TodayDetail 今日交易明细，最新的在前
func (s *SummaryService) TodayDetail(ctx context.Context, req *PhoneRequest) (*TodaySummaryReply, error) {
	return s.today(ctx, req, constants.ActionRekapDetail, true)
}

func (s *SummaryService) today(ctx context.Context, req *PhoneRequest, action string, detail bool) (*TodaySummaryReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	sum, err := s.uc.Today(ctx, phoneNumber, action)
	if err != nil {
		return nil, err
	}
	reply := &TodaySummaryReply{
		PhoneNumber:  phoneNumber,
		Date:         formatDate(&sum.Date, s.loc),
		TotalExpense: sum.TotalExpense,
		TotalIncome:  sum.TotalIncome,
		Count:        len(sum.Records),
	}
	if detail {
		reply.Transactions = toTransactionViews(sum.Records, s.loc)
	}
	return reply, nil
}

// MonthBalance 本月收入、支出与结余
func (s *SummaryService) MonthBalance(ctx context.Context, req *PhoneRequest) (*MonthBalanceReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	b, err := s.uc.MonthBalance(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	return &MonthBalanceReply{
		PhoneNumber:  phoneNumber,
		Period:       periodLabel(b.Period),
		Month:        int(b.Period.Month()),
		Year:         b.Period.Year(),
		TotalIncome:  b.TotalIncome,
		TotalExpense: b.TotalExpense,
		Net:          b.Net,
	}, nil
}

// StatisticsByCategory 某月支出按分类占比
func (s *SummaryService) StatisticsByCategory(ctx context.Context, req *SummaryPeriodRequest) (*CategoryStatisticsReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	st, err := s.uc.StatisticsByCategory(ctx, phoneNumber, req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	items := make([]*CategoryStatItem, 0, len(st.Stats))
	for _, c := range st.Stats {
		items = append(items, &CategoryStatItem{Category: c.Category, Total: c.Total, Count: c.Count, Percentage: c.Percentage})
	}
	return &CategoryStatisticsReply{
		PhoneNumber:  phoneNumber,
		Period:       periodLabel(st.Period),
		Month:        int(st.Period.Month()),
		Year:         st.Period.Year(),
		TotalExpense: st.TotalExpense,
		Categories:   items,
	}, nil
}

// ByCategory 某月某分类的交易
func (s *SummaryService) ByCategory(ctx context.Context, req *ByCategoryRequest) (*ByCategoryReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	sum, err := s.uc.ByCategory(ctx, phoneNumber, req.Category, req.Month, req.Year)
	if err != nil {
		return nil, err
	}
	return &ByCategoryReply{
		PhoneNumber:  phoneNumber,
		Period:       periodLabel(sum.Period),
		Category:     sum.Category,
		Total:        sum.Total,
		TotalIncome:  sum.TotalIncome,
		TotalExpense: sum.TotalExpense,
		Count:        len(sum.Records),
		Transactions: toTransactionViews(sum.Records, s.loc),
	}, nil
}

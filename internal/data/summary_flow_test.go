package data

import (
	"context"
	"testing"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

func (e *testEnv) record(t *testing.T, phoneNumber string, records ...*biz.TransactionRecord) {
	t.Helper()
	if _, err := e.recordUC.RecordBatch(context.Background(), phoneNumber, records); err != nil {
		t.Fatalf("RecordBatch(%s): %v", phoneNumber, err)
	}
}

func TestTodayEmptyReminderTargets(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	recorded := env.mustUser(t, "6281700000001", constants.PlanPro)
	empty := env.mustUser(t, "6281700000002", constants.PlanPro)
	muted := env.mustUser(t, "6281700000003", constants.PlanPro)
	yesterday := env.mustUser(t, "6281700000004", constants.PlanPro)

	env.record(t, recorded.PhoneNumber, &biz.TransactionRecord{Amount: 5000, Description: "kopi", Type: constants.TransactionTypeExpense})
	env.record(t, yesterday.PhoneNumber, &biz.TransactionRecord{
		Amount: 5000, Description: "kopi", Type: constants.TransactionTypeExpense,
		Tanggal: time.Date(2026, 3, 4, 0, 0, 0, 0, wib),
	})
	if _, err := env.userUC.SetReminder(ctx, muted.PhoneNumber, false); err != nil {
		t.Fatalf("SetReminder: %v", err)
	}

	day, users, err := env.userUC.TodayEmpty(ctx)
	if err != nil {
		t.Fatalf("TodayEmpty: %v", err)
	}
	if !day.Equal(time.Date(2026, 3, 5, 0, 0, 0, 0, wib)) {
		t.Fatalf("date = %v", day)
	}
	if len(users) != 2 || users[0].ID != empty.ID || users[1].ID != yesterday.ID {
		got := make([]string, 0, len(users))
		for _, u := range users {
			got = append(got, u.PhoneNumber)
		}
		t.Fatalf("targets = %v, want [%s %s]", got, empty.PhoneNumber, yesterday.PhoneNumber)
	}

	// 第二天所有开启提醒的用户都需要提醒
	env.clock.Set(time.Date(2026, 3, 6, 8, 0, 0, 0, wib))
	if _, users, err = env.userUC.TodayEmpty(ctx); err != nil || len(users) != 3 {
		t.Fatalf("next day targets = %d, %v; want 3", len(users), err)
	}
}

func TestSummaryTodayAndMonth(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281700000005", constants.PlanPro)

	env.record(t, u.PhoneNumber,
		&biz.TransactionRecord{Amount: 20000, Description: "makan siang", Type: constants.TransactionTypeExpense, Category: "Makan"},
		&biz.TransactionRecord{Amount: 100000, Description: "gaji harian", Type: constants.TransactionTypeIncome},
	)
	env.record(t, u.PhoneNumber, &biz.TransactionRecord{
		Amount: 50000, Description: "bensin", Type: constants.TransactionTypeExpense, Category: "Transport",
		Tanggal: time.Date(2026, 3, 1, 0, 0, 0, 0, wib),
	})
	// 上个月的交易不计入
	env.record(t, u.PhoneNumber, &biz.TransactionRecord{
		Amount: 99000, Description: "listrik", Type: constants.TransactionTypeExpense, Category: "Tagihan",
		Tanggal: time.Date(2026, 2, 28, 0, 0, 0, 0, wib),
	})

	today, err := env.summaryUC.Today(ctx, u.PhoneNumber, constants.ActionRekapHariIni)
	if err != nil {
		t.Fatalf("Today: %v", err)
	}
	if len(today.Records) != 2 || today.TotalExpense != 20000 || today.TotalIncome != 100000 {
		t.Fatalf("today = %d records, expense=%d income=%d", len(today.Records), today.TotalExpense, today.TotalIncome)
	}

	bal, err := env.summaryUC.MonthBalance(ctx, u.PhoneNumber)
	if err != nil {
		t.Fatalf("MonthBalance: %v", err)
	}
	if bal.TotalIncome != 100000 || bal.TotalExpense != 70000 || bal.Net != 30000 {
		t.Fatalf("balance = %+v", bal)
	}
	if !bal.Period.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, wib)) {
		t.Fatalf("period = %v", bal.Period)
	}
}

func TestSummaryByCategory(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 20, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281700000006", constants.PlanPro)

	env.record(t, u.PhoneNumber,
		&biz.TransactionRecord{Amount: 10000, Description: "nasi", Type: constants.TransactionTypeExpense, Category: "Makan"},
		&biz.TransactionRecord{Amount: 20000, Description: "bakso", Type: constants.TransactionTypeExpense, Category: "Makan"},
		&biz.TransactionRecord{Amount: 30000, Description: "ojek", Type: constants.TransactionTypeExpense, Category: "Transport"},
		&biz.TransactionRecord{Amount: 30000, Description: "teh", Type: constants.TransactionTypeExpense, Category: "Minuman"},
		&biz.TransactionRecord{Amount: 500000, Description: "bonus", Type: constants.TransactionTypeIncome, Category: "Makan"},
	)

	st, err := env.summaryUC.StatisticsByCategory(ctx, u.PhoneNumber, 0, 0)
	if err != nil {
		t.Fatalf("StatisticsByCategory: %v", err)
	}
	if st.TotalExpense != 90000 || len(st.Stats) != 3 {
		t.Fatalf("stats total=%d categories=%d", st.TotalExpense, len(st.Stats))
	}
	want := []struct {
		category string
		total    int64
		count    int
		pct      float64
	}{
		{"Makan", 30000, 2, 33.3},
		{"Minuman", 30000, 1, 33.3},
		{"Transport", 30000, 1, 33.3},
	}
	for i, w := range want {
		got := st.Stats[i]
		if got.Category != w.category || got.Total != w.total || got.Count != w.count || got.Percentage != w.pct {
			t.Fatalf("stats[%d] = %+v, want %+v", i, got, w)
		}
	}

	byCat, err := env.summaryUC.ByCategory(ctx, u.PhoneNumber, "Makan", 3, 2026)
	if err != nil {
		t.Fatalf("ByCategory: %v", err)
	}
	if len(byCat.Records) != 3 || byCat.TotalExpense != 30000 || byCat.TotalIncome != 500000 || byCat.Total != 530000 {
		t.Fatalf("by category = %d records, %+v", len(byCat.Records), byCat)
	}
	empty, err := env.summaryUC.ByCategory(ctx, u.PhoneNumber, "Makan", 2, 2026)
	if err != nil || len(empty.Records) != 0 || empty.Total != 0 {
		t.Fatalf("other month = %+v, %v", empty, err)
	}

	if _, err := env.summaryUC.ByCategory(ctx, u.PhoneNumber, "Crypto", 0, 0); !bizErrors.Is(err, bizErrors.ErrCodeValidation) {
		t.Fatalf("unknown category err = %v", err)
	}
	if _, err := env.summaryUC.StatisticsByCategory(ctx, u.PhoneNumber, 13, 2026); !bizErrors.Is(err, bizErrors.ErrCodeValidation) {
		t.Fatalf("month 13 err = %v", err)
	}
	if _, err := env.summaryUC.StatisticsByCategory(ctx, u.PhoneNumber, 1, 2019); !bizErrors.Is(err, bizErrors.ErrCodeValidation) {
		t.Fatalf("year 2019 err = %v", err)
	}
}

func TestSummaryRequiresActiveSubscription(t *testing.T) {
	env := newTestEnv(t, time.Date(2026, 3, 5, 10, 0, 0, 0, wib))
	ctx := context.Background()
	u := env.mustUser(t, "6281700000007", "") // 试用到 03-08

	if _, err := env.summaryUC.MonthBalance(ctx, u.PhoneNumber); err != nil {
		t.Fatalf("MonthBalance during trial: %v", err)
	}
	env.clock.Set(time.Date(2026, 3, 8, 9, 0, 0, 0, wib))
	_, err := env.summaryUC.Today(ctx, u.PhoneNumber, constants.ActionRekapHariIni)
	if !bizErrors.Is(err, bizErrors.ErrCodeSubscriptionExpired) {
		t.Fatalf("expired err = %v, want subscription expired", err)
	}
	se := kerrors.FromError(err)
	if se.Code != 403 || se.Metadata["action"] != constants.ActionRekapHariIni || se.Metadata["current_plan"] != constants.PlanFree {
		t.Fatalf("expired error = %d %v", se.Code, se.Metadata)
	}
	if _, err := env.summaryUC.MonthBalance(ctx, "6281799999999"); !bizErrors.Is(err, bizErrors.ErrCodeUserNotFound) {
		t.Fatalf("unknown user err = %v", err)
	}
}

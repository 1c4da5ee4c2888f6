package biz

import (
	"testing"
	"time"

	"catatuang-service/internal/constants"
)

func TestNeedsCounterReset(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 30, 0, 0, wib)
	lastMonth := time.Date(2026, 2, 28, 0, 0, 0, 0, wib)
	thisMonth := time.Date(2026, 3, 1, 0, 0, 0, 0, wib)
	// 2026-02-28 20:00 UTC 在 WIB 已经是 3 月
	utcLate := time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		last *time.Time
		want bool
	}{
		{"never reset", nil, true},
		{"previous month", &lastMonth, true},
		{"same month", &thisMonth, false},
		{"compared in clock location", &utcLate, false},
	}
	for _, tt := range tests {
		u := &User{LastResetAt: tt.last}
		if got := u.NeedsCounterReset(now); got != tt.want {
			t.Fatalf("%s: NeedsCounterReset = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestQuotaEvaluate(t *testing.T) {
	clock := NewFixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, wib))
	uc := NewQuotaUseCase(nil, nil, nil, NewPlanPolicy(nil), clock, testLogger())

	tests := []struct {
		name      string
		user      *User
		counter   string
		n         int
		allowed   bool
		limit     int
		remaining int
		unlimited bool
	}{
		{"free chat under limit", &User{Plan: constants.PlanFree, ChatCountMonth: 9}, constants.CounterChat, 1, true, 10, 1, false},
		{"free chat at limit", &User{Plan: constants.PlanFree, ChatCountMonth: 10}, constants.CounterChat, 1, false, 10, 0, false},
		{"struk batch fits exactly", &User{Plan: constants.PlanStarter, StrukCountMonth: 2}, constants.CounterStruk, 3, true, 5, 3, false},
		{"struk batch over by one", &User{Plan: constants.PlanStarter, StrukCountMonth: 3}, constants.CounterStruk, 3, false, 5, 2, false},
		{"over-consumed clamps remaining", &User{Plan: constants.PlanFree, StrukCountMonth: 4}, constants.CounterStruk, 1, false, 1, 0, false},
		{"unlimited ignores counters", &User{Plan: constants.PlanUnlimited, ChatCountMonth: 100000}, constants.CounterChat, 50, true, 0, 0, true},
	}
	for _, tt := range tests {
		st := uc.Evaluate(tt.user, tt.counter, tt.n)
		if st.Allowed != tt.allowed {
			t.Fatalf("%s: allowed = %v, want %v", tt.name, st.Allowed, tt.allowed)
		}
		if tt.unlimited {
			if st.Limit != nil || st.Remaining != nil {
				t.Fatalf("%s: unlimited plan should have nil limit/remaining", tt.name)
			}
			continue
		}
		if st.Limit == nil || *st.Limit != tt.limit {
			t.Fatalf("%s: limit = %v, want %d", tt.name, st.Limit, tt.limit)
		}
		if st.Remaining == nil || *st.Remaining != tt.remaining {
			t.Fatalf("%s: remaining = %v, want %d", tt.name, st.Remaining, tt.remaining)
		}
	}
}

func TestConsumeRejectsUnknownCounter(t *testing.T) {
	clock := NewFixedClock(time.Date(2026, 3, 10, 9, 0, 0, 0, wib))
	uc := NewQuotaUseCase(nil, nil, nil, NewPlanPolicy(nil), clock, testLogger())
	if _, err := uc.Consume(t.Context(), "6281234567890", "voice", 1); err == nil {
		t.Fatalf("expected error for unknown counter")
	}
}

package biz

import (
	"testing"
	"time"

	"catatuang-service/internal/constants"
)

func newSubscriptionUC(now time.Time) *SubscriptionUseCase {
	return NewSubscriptionUseCase(nil, NewFixedClock(now), NewServiceConfig(nil), nil, testLogger())
}

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, wib)
	return &t
}

func TestIsSubscriptionActive(t *testing.T) {
	uc := newSubscriptionUC(time.Date(2026, 5, 10, 23, 59, 0, 0, wib))

	tests := []struct {
		name    string
		status  string
		expires *time.Time
		want    bool
	}{
		{"active without expiry", constants.SubscriptionStatusActive, nil, true},
		{"expired yesterday", constants.SubscriptionStatusActive, day(2026, 5, 9), false},
		{"expires today", constants.SubscriptionStatusActive, day(2026, 5, 10), false},
		{"expires tomorrow", constants.SubscriptionStatusActive, day(2026, 5, 11), true},
		{"cancelled status wins", constants.SubscriptionStatusCancelled, nil, false},
		{"expired status wins", constants.SubscriptionStatusExpired, day(2026, 6, 1), false},
	}
	for _, tt := range tests {
		u := &User{SubscriptionStatus: tt.status, SubscriptionExpiresAt: tt.expires}
		if got := uc.IsSubscriptionActive(u); got != tt.want {
			t.Fatalf("%s: IsSubscriptionActive = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsExpiringSoonExactDay(t *testing.T) {
	uc := newSubscriptionUC(time.Date(2026, 5, 10, 8, 0, 0, 0, wib))
	active := constants.SubscriptionStatusActive

	tests := []struct {
		expires *time.Time
		days    int
		want    bool
	}{
		{day(2026, 5, 12), 2, true},
		{day(2026, 5, 11), 2, false},
		{day(2026, 5, 13), 2, false},
		{day(2026, 5, 17), 7, true},
		{nil, 2, false},
	}
	for _, tt := range tests {
		u := &User{SubscriptionStatus: active, SubscriptionExpiresAt: tt.expires}
		if got := uc.IsExpiringSoon(u, tt.days); got != tt.want {
			t.Fatalf("IsExpiringSoon(%v, %d) = %v, want %v", tt.expires, tt.days, got, tt.want)
		}
	}
}

func TestDaysUntilExpiry(t *testing.T) {
	uc := newSubscriptionUC(time.Date(2026, 5, 10, 22, 0, 0, 0, wib))

	if _, ok := uc.DaysUntilExpiry(&User{}); ok {
		t.Fatalf("no expiry should report ok=false")
	}
	tests := []struct {
		expires *time.Time
		want    int
	}{
		{day(2026, 5, 12), 2},
		{day(2026, 5, 11), 1},
		{day(2026, 5, 10), 0},
		{day(2026, 5, 9), -1},
		{day(2026, 5, 8), -2},
		{day(2026, 4, 10), -30},
	}
	for _, tt := range tests {
		if d, _ := uc.DaysUntilExpiry(&User{SubscriptionExpiresAt: tt.expires}); d != tt.want {
			t.Fatalf("DaysUntilExpiry(%v) = %d, want %d", tt.expires.Format(time.DateOnly), d, tt.want)
		}
	}

	// 到期时间以 UTC 存储时按本地日历日计算
	utc := time.Date(2026, 5, 7, 17, 0, 0, 0, time.UTC) // WIB 05-08 00:00
	if d, _ := uc.DaysUntilExpiry(&User{SubscriptionExpiresAt: &utc}); d != -2 {
		t.Fatalf("utc expiry days = %d, want -2", d)
	}
}

func TestListExpiringSoonRejectsOutOfRange(t *testing.T) {
	uc := newSubscriptionUC(time.Date(2026, 5, 10, 8, 0, 0, 0, wib))
	if _, _, err := uc.ListExpiringSoon(t.Context(), 31); err == nil {
		t.Fatalf("expected validation error for days=31")
	}
}

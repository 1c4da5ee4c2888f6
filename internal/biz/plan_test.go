package biz

import (
	"io"
	"testing"
	"time"

	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

var wib = time.FixedZone("WIB", 7*3600)

func testLogger() log.Logger {
	return log.NewStdLogger(io.Discard)
}

func TestPlanPolicyDefaults(t *testing.T) {
	p := NewPlanPolicy(&conf.Bootstrap{})

	tests := []struct {
		plan       string
		chat       int
		chatOK     bool
		struk      int
		strukOK    bool
		days       int
		daysOK     bool
		purchasble bool
	}{
		{constants.PlanFree, 10, true, 1, true, 3, true, false},
		{constants.PlanStarter, 20, true, 5, true, 30, true, true},
		{constants.PlanPro, 50, true, 10, true, 30, true, true},
		{constants.PlanVIP, 100, true, 20, true, 30, true, true},
		{constants.PlanUnlimited, 0, false, 0, false, 0, false, false},
	}
	for _, tt := range tests {
		chat, ok := p.ChatLimit(tt.plan)
		if chat != tt.chat || ok != tt.chatOK {
			t.Fatalf("%s chat limit = %d/%v, want %d/%v", tt.plan, chat, ok, tt.chat, tt.chatOK)
		}
		struk, ok := p.StrukLimit(tt.plan)
		if struk != tt.struk || ok != tt.strukOK {
			t.Fatalf("%s struk limit = %d/%v, want %d/%v", tt.plan, struk, ok, tt.struk, tt.strukOK)
		}
		days, ok := p.SubscriptionDays(tt.plan)
		if days != tt.days || ok != tt.daysOK {
			t.Fatalf("%s subscription days = %d/%v, want %d/%v", tt.plan, days, ok, tt.days, tt.daysOK)
		}
		if got := p.Purchasable(tt.plan); got != tt.purchasble {
			t.Fatalf("%s purchasable = %v, want %v", tt.plan, got, tt.purchasble)
		}
	}
}

func TestPlanPolicyLevelsAndUnknown(t *testing.T) {
	p := NewPlanPolicy(nil)
	if !(p.Level(constants.PlanFree) < p.Level(constants.PlanStarter) &&
		p.Level(constants.PlanStarter) < p.Level(constants.PlanPro) &&
		p.Level(constants.PlanPro) < p.Level(constants.PlanVIP) &&
		p.Level(constants.PlanVIP) < p.Level(constants.PlanUnlimited)) {
		t.Fatalf("plan levels are not strictly increasing")
	}
	// 未知套餐按 free 额度处理
	if limit, ok := p.ChatLimit("gold"); !ok || limit != 10 {
		t.Fatalf("unknown plan chat limit = %d/%v, want 10/true", limit, ok)
	}
	if p.Purchasable("gold") {
		t.Fatalf("unknown plan must not be purchasable")
	}
	names := p.Names()
	if names[0] != constants.PlanFree || names[len(names)-1] != constants.PlanUnlimited {
		t.Fatalf("Names() = %v, want ordered by level", names)
	}
}

func TestPlanPolicyFromConfig(t *testing.T) {
	p := NewPlanPolicy(&conf.Bootstrap{Plans: map[string]*conf.Plan{
		"free":    {Level: 0, ChatLimit: 5, StrukLimit: 0, SubscriptionDays: 7},
		"premium": {Level: 5, ChatLimit: -1, StrukLimit: 50, SubscriptionDays: 90, Purchasable: true},
	}})
	if limit, ok := p.ChatLimit("premium"); ok {
		t.Fatalf("negative chat limit should mean unlimited, got %d", limit)
	}
	if limit, ok := p.StrukLimit("premium"); !ok || limit != 50 {
		t.Fatalf("premium struk limit = %d/%v, want 50/true", limit, ok)
	}
	if !p.Purchasable("premium") {
		t.Fatalf("premium should be purchasable")
	}
	if _, ok := p.Get(constants.PlanVIP); ok {
		t.Fatalf("configured plan table should replace the defaults")
	}
}

func TestWindowFor(t *testing.T) {
	p := NewPlanPolicy(nil)
	now := time.Date(2026, 1, 30, 15, 4, 5, 0, wib)

	w := windowFor(p, constants.PlanStarter, now)
	if !w.StartedAt.Equal(time.Date(2026, 1, 30, 0, 0, 0, 0, wib)) {
		t.Fatalf("started_at = %v", w.StartedAt)
	}
	if w.ExpiresAt == nil || !w.ExpiresAt.Equal(time.Date(2026, 3, 1, 0, 0, 0, 0, wib)) {
		t.Fatalf("starter expires_at = %v, want 2026-03-01", w.ExpiresAt)
	}

	w = windowFor(p, constants.PlanFree, now)
	if w.ExpiresAt == nil || !w.ExpiresAt.Equal(time.Date(2026, 2, 2, 0, 0, 0, 0, wib)) {
		t.Fatalf("free expires_at = %v, want 2026-02-02", w.ExpiresAt)
	}

	w = windowFor(p, constants.PlanUnlimited, now)
	if w.ExpiresAt != nil {
		t.Fatalf("unlimited expires_at = %v, want nil", w.ExpiresAt)
	}
}

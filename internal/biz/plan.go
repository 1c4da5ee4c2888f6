package biz

import (
	"sort"

	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"
)

// Plan 套餐策略（一行配置）
type Plan struct {
	Name             string
	Level            int
	ChatLimit        int // < 0 表示不限
	StrukLimit       int // < 0 表示不限
	SubscriptionDays int // 0 表示不过期
	Unlimited        bool
	Purchasable      bool
}

// PlanPolicy 套餐表：等级、配额、订阅天数都是数据而不是类型
type PlanPolicy struct {
	plans map[string]*Plan
}

func defaultPlans() map[string]*Plan {
	return map[string]*Plan{
		constants.PlanFree:      {Name: constants.PlanFree, Level: 0, ChatLimit: 10, StrukLimit: 1, SubscriptionDays: 3},
		constants.PlanStarter:   {Name: constants.PlanStarter, Level: 1, ChatLimit: 20, StrukLimit: 5, SubscriptionDays: 30, Purchasable: true},
		constants.PlanPro:       {Name: constants.PlanPro, Level: 2, ChatLimit: 50, StrukLimit: 10, SubscriptionDays: 30, Purchasable: true},
		constants.PlanVIP:       {Name: constants.PlanVIP, Level: 3, ChatLimit: 100, StrukLimit: 20, SubscriptionDays: 30, Purchasable: true},
		constants.PlanUnlimited: {Name: constants.PlanUnlimited, Level: 999, ChatLimit: -1, StrukLimit: -1, Unlimited: true},
	}
}

// NewPlanPolicy 从配置创建套餐表，未配置时使用默认值
func NewPlanPolicy(c *conf.Bootstrap) *PlanPolicy {
	plans := defaultPlans()
	if c != nil && len(c.Plans) > 0 {
		plans = make(map[string]*Plan, len(c.Plans))
		for name, p := range c.Plans {
			if p == nil {
				continue
			}
			plans[name] = &Plan{
				Name:             name,
				Level:            p.Level,
				ChatLimit:        p.ChatLimit,
				StrukLimit:       p.StrukLimit,
				SubscriptionDays: p.SubscriptionDays,
				Unlimited:        p.Unlimited,
				Purchasable:      p.Purchasable,
			}
		}
	}
	return &PlanPolicy{plans: plans}
}

// Get 返回套餐配置
func (p *PlanPolicy) Get(name string) (*Plan, bool) {
	plan, ok := p.plans[name]
	return plan, ok
}

// resolve 未知套餐按 free 处理
func (p *PlanPolicy) resolve(name string) *Plan {
	if plan, ok := p.plans[name]; ok {
		return plan
	}
	if plan, ok := p.plans[constants.PlanFree]; ok {
		return plan
	}
	return &Plan{Name: constants.PlanFree, ChatLimit: 10, StrukLimit: 1, SubscriptionDays: 3}
}

// IsUnlimited 名为 unlimited 或配置为 unlimited 的套餐不做任何配额计算
func (p *PlanPolicy) IsUnlimited(name string) bool {
	if name == constants.PlanUnlimited {
		return true
	}
	plan, ok := p.plans[name]
	return ok && plan.Unlimited
}

// Level 套餐等级，未知套餐为 0
func (p *PlanPolicy) Level(name string) int {
	if plan, ok := p.plans[name]; ok {
		return plan.Level
	}
	return 0
}

// ChatLimit 月度聊天额度，ok=false 表示不限
func (p *PlanPolicy) ChatLimit(name string) (limit int, ok bool) {
	return p.limit(name, constants.CounterChat)
}

// StrukLimit 月度小票上传额度，ok=false 表示不限
func (p *PlanPolicy) StrukLimit(name string) (limit int, ok bool) {
	return p.limit(name, constants.CounterStruk)
}

// Limit 按计数器取额度
func (p *PlanPolicy) Limit(name, counter string) (int, bool) {
	return p.limit(name, counter)
}

func (p *PlanPolicy) limit(name, counter string) (int, bool) {
	if p.IsUnlimited(name) {
		return 0, false
	}
	plan := p.resolve(name)
	v := plan.ChatLimit
	if counter == constants.CounterStruk {
		v = plan.StrukLimit
	}
	if v < 0 {
		return 0, false
	}
	return v, true
}

// SubscriptionDays 订阅天数；ok=false 表示不过期
func (p *PlanPolicy) SubscriptionDays(name string) (int, bool) {
	if p.IsUnlimited(name) {
		return 0, false
	}
	plan := p.resolve(name)
	if plan.SubscriptionDays <= 0 {
		return 0, false
	}
	return plan.SubscriptionDays, true
}

// Purchasable 可以通过结账购买的套餐（不含 free、unlimited）
func (p *PlanPolicy) Purchasable(name string) bool {
	plan, ok := p.plans[name]
	if !ok || p.IsUnlimited(name) || name == constants.PlanFree {
		return false
	}
	return plan.Purchasable
}

// Names 按等级排序的套餐名
func (p *PlanPolicy) Names() []string {
	names := make([]string, 0, len(p.plans))
	for name := range p.plans {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		li, lj := p.plans[names[i]].Level, p.plans[names[j]].Level
		if li != lj {
			return li < lj
		}
		return names[i] < names[j]
	})
	return names
}

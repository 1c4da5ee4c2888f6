package biz

import (
	"sync"
	"time"

	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"
)

// Clock 注入的时间源，所有日期比较（月度重置、到期）都基于它的时区
type Clock interface {
	Now() time.Time
}

type systemClock struct {
	loc *time.Location
}

func (c systemClock) Now() time.Time {
	return time.Now().In(c.loc)
}

// NewClock 按配置时区创建系统时钟
func NewClock(c *conf.Bootstrap) (Clock, error) {
	tz := constants.DefaultTimezone
	if c.Subscription != nil && c.Subscription.Timezone != "" {
		tz = c.Subscription.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, err
	}
	return systemClock{loc: loc}, nil
}

// FixedClock 可手动推进的时钟，用于测试和回放
type FixedClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFixedClock 创建固定时钟
func NewFixedClock(now time.Time) *FixedClock {
	return &FixedClock{now: now}
}

// Now 实现 Clock
func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Set 设置当前时间
func (c *FixedClock) Set(now time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

// Advance 向前推进
func (c *FixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// StartOfDay 返回 t 所在时区当天 00:00
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// StartOfMonth 返回 t 所在时区当月 1 日 00:00
func StartOfMonth(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, t.Location())
}

// AddDays 按日历日相加，避免夏令时下 24h 偏差
func AddDays(day time.Time, n int) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+n, 0, 0, 0, 0, day.Location())
}

// sameDay 在 loc 时区下比较日期
func sameDay(a, b time.Time, loc *time.Location) bool {
	ay, am, ad := a.In(loc).Date()
	by, bm, bd := b.In(loc).Date()
	return ay == by && am == bm && ad == bd
}

// daysBetween 两个时间所在日历日之差，b 早于 a 时为负
func daysBetween(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from) / (24 * time.Hour))
}

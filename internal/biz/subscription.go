package biz

import (
	"context"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// SubscriptionUseCase 订阅状态判断与批量清理
type SubscriptionUseCase struct {
	repo      UserRepo
	clock     Clock
	conf      *ServiceConfig
	publisher EventPublisher
	log       *log.Helper
	metrics   *metrics.CatatUangMetrics
}

// NewSubscriptionUseCase 创建订阅 UseCase
func NewSubscriptionUseCase(repo UserRepo, clock Clock, conf *ServiceConfig, publisher EventPublisher, logger log.Logger) *SubscriptionUseCase {
	return &SubscriptionUseCase{
		repo:      repo,
		clock:     clock,
		conf:      conf,
		publisher: publisher,
		log:       log.NewHelper(logger),
		metrics:   metrics.GetMetrics(),
	}
}

// IsSubscriptionActive 按日期比较：到期日当天起视为失效
func (uc *SubscriptionUseCase) IsSubscriptionActive(u *User) bool {
	if u.SubscriptionStatus != constants.SubscriptionStatusActive {
		return false
	}
	if u.SubscriptionExpiresAt == nil {
		return true
	}
	now := uc.clock.Now()
	expires := StartOfDay(u.SubscriptionExpiresAt.In(now.Location()))
	return expires.After(StartOfDay(now))
}

// IsExpiringSoon 到期日恰好是 today+days（精确匹配，避免窗口内每天重复提醒）
func (uc *SubscriptionUseCase) IsExpiringSoon(u *User, days int) bool {
	if u.SubscriptionStatus != constants.SubscriptionStatusActive || u.SubscriptionExpiresAt == nil {
		return false
	}
	now := uc.clock.Now()
	return sameDay(*u.SubscriptionExpiresAt, AddDays(StartOfDay(now), days), now.Location())
}

// DaysUntilExpiry 距到期的天数；不过期时 ok=false，已过期为负数
func (uc *SubscriptionUseCase) DaysUntilExpiry(u *User) (days int, ok bool) {
	if u.SubscriptionExpiresAt == nil {
		return 0, false
	}
	now := uc.clock.Now()
	return daysBetween(now, u.SubscriptionExpiresAt.In(now.Location())), true
}

// ListExpiringSoon 到期日为 today+days 的活跃用户，days 为 0 时取配置默认值
func (uc *SubscriptionUseCase) ListExpiringSoon(ctx context.Context, days int) ([]*User, int, error) {
	if days == 0 {
		days = uc.conf.ExpiringSoonDays
	}
	if days < 1 || days > 30 {
		return nil, 0, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{
			"days": "must be 1-30",
		})
	}
	target := AddDays(StartOfDay(uc.clock.Now()), days)
	users, err := uc.repo.ListExpiringBetween(ctx, target, AddDays(target, 1))
	if err != nil {
		return nil, 0, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return users, days, nil
}

// ListExpired 仍为 active 但到期日早于今天的用户（下一次 MarkExpired 的对象）
func (uc *SubscriptionUseCase) ListExpired(ctx context.Context) ([]*User, error) {
	users, err := uc.repo.ListExpired(ctx, StartOfDay(uc.clock.Now()))
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return users, nil
}

// MarkExpired 把到期日早于今天的活跃订阅批量置为 expired，可重复执行
func (uc *SubscriptionUseCase) MarkExpired(ctx context.Context) (int64, error) {
	now := uc.clock.Now()
	today := StartOfDay(now)
	expired, err := uc.repo.ListExpired(ctx, today)
	if err != nil {
		return 0, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	n, err := uc.repo.MarkExpired(ctx, today)
	if err != nil {
		return 0, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if uc.metrics != nil && n > 0 {
		uc.metrics.SubscriptionExpiredTotal.Add(float64(n))
	}
	uc.log.Infof("subscriptions marked expired: count=%d, date=%s", n, today.Format(constants.TimeFormatDate))

	if len(expired) > 0 && uc.publisher != nil {
		events := make([]*SubscriptionEvent, 0, len(expired))
		for _, u := range expired {
			events = append(events, &SubscriptionEvent{
				Type:        constants.EventSubscriptionExpired,
				UserID:      u.ID,
				PhoneNumber: u.PhoneNumber,
				Plan:        u.Plan,
				ExpiresAt:   u.SubscriptionExpiresAt,
				OccurredAt:  now,
			})
		}
		if err := uc.publisher.Publish(ctx, events...); err != nil {
			uc.log.Warnf("publish expiry events failed: count=%d, err=%v", len(events), err)
		}
	}
	return n, nil
}

// ResetStaleCounters 兜底：清零本月尚未重置过的计数器
func (uc *SubscriptionUseCase) ResetStaleCounters(ctx context.Context) (int64, error) {
	now := uc.clock.Now()
	n, err := uc.repo.ResetStaleCounters(ctx, StartOfMonth(now), StartOfDay(now))
	if err != nil {
		return 0, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if uc.metrics != nil && n > 0 {
		uc.metrics.QuotaResetTotal.Add(float64(n))
	}
	uc.log.Infof("stale counters reset: count=%d, month=%s", n, now.Format(constants.TimeFormatMonth))
	return n, nil
}

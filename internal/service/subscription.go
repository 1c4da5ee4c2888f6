package service

import (
	"context"
	"fmt"
	"time"

	"catatuang-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// SubscriptionService 订阅到期查询与定时清理接口（由外部调度调用）
type SubscriptionService struct {
	uc  *biz.SubscriptionUseCase
	loc *time.Location
	log *log.Helper
}

// NewSubscriptionService 创建 SubscriptionService
func NewSubscriptionService(uc *biz.SubscriptionUseCase, clock biz.Clock, logger log.Logger) *SubscriptionService {
	return &SubscriptionService{
		uc:  uc,
		loc: clock.Now().Location(),
		log: log.NewHelper(logger),
	}
}

// ExpiringSoon 恰好 days 天后到期的活跃用户，用于发送续费提醒
func (s *SubscriptionService) ExpiringSoon(ctx context.Context, req *ExpiringSoonRequest) (*SubscriptionListReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	users, days, err := s.uc.ListExpiringSoon(ctx, req.Days)
	if err != nil {
		return nil, err
	}
	reply := s.toList(users)
	reply.Days = days
	return reply, nil
}

// Expired 到期但尚未标记的用户
func (s *SubscriptionService) Expired(ctx context.Context, _ *EmptyRequest) (*SubscriptionListReply, error) {
	users, err := s.uc.ListExpired(ctx)
	if err != nil {
		return nil, err
	}
	return s.toList(users), nil
}

// MarkExpired 批量标记过期订阅
func (s *SubscriptionService) MarkExpired(ctx context.Context, _ *EmptyRequest) (*SweepReply, error) {
	n, err := s.uc.MarkExpired(ctx)
	if err != nil {
		s.log.Errorf("MarkExpired failed: %v", err)
		return nil, err
	}
	return &SweepReply{UpdatedCount: n, Message: fmt.Sprintf("%d subscriptions marked as expired", n)}, nil
}

// ResetCounters 兜底重置本月未重置的计数器
func (s *SubscriptionService) ResetCounters(ctx context.Context, _ *EmptyRequest) (*SweepReply, error) {
	n, err := s.uc.ResetStaleCounters(ctx)
	if err != nil {
		s.log.Errorf("ResetCounters failed: %v", err)
		return nil, err
	}
	return &SweepReply{UpdatedCount: n, Message: fmt.Sprintf("%d users counters reset", n)}, nil
}

func (s *SubscriptionService) toList(users []*biz.User) *SubscriptionListReply {
	out := make([]*SubscriptionUser, 0, len(users))
	for _, u := range users {
		days, _ := s.uc.DaysUntilExpiry(u)
		out = append(out, &SubscriptionUser{
			ID:                    u.ID,
			PhoneNumber:           u.PhoneNumber,
			Name:                  u.Name,
			Plan:                  u.Plan,
			ResponseStyle:         u.ResponseStyle,
			SubscriptionExpiresAt: formatDate(u.SubscriptionExpiresAt, s.loc),
			DaysUntilExpiry:       days,
		})
	}
	return &SubscriptionListReply{Count: len(out), Users: out}
}

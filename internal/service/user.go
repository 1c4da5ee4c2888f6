package service

import (
	"context"
	"time"

	"catatuang-service/internal/biz"

	"github.com/go-kratos/kratos/v2/log"
)

// UserService 机器人侧的用户资料接口
type UserService struct {
	uc   *biz.UserUseCase
	subs *biz.SubscriptionUseCase
	loc  *time.Location
	log  *log.Helper
}

// NewUserService 创建 UserService
func NewUserService(uc *biz.UserUseCase, subs *biz.SubscriptionUseCase, clock biz.Clock, logger log.Logger) *UserService {
	return &UserService{
		uc:   uc,
		subs: subs,
		loc:  clock.Now().Location(),
		log:  log.NewHelper(logger),
	}
}

// CheckOrCreate 查询或注册用户，已存在且没有名字时补上名字
func (s *UserService) CheckOrCreate(ctx context.Context, req *CheckOrCreateRequest) (*UserReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	u, created, err := s.uc.FindOrCreate(ctx, phoneNumber, req.Name)
	if err != nil {
		s.log.Errorf("CheckOrCreate failed: phone=%s, err=%v", phoneNumber, err)
		return nil, err
	}
	return toUserReply(u, s.subs.IsSubscriptionActive(u), created, s.loc), nil
}

// UpdateReminder 开关每日提醒
func (s *UserService) UpdateReminder(ctx context.Context, req *ReminderRequest) (*UserReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	u, err := s.uc.SetReminder(ctx, phoneNumber, *req.Enabled)
	if err != nil {
		return nil, err
	}
	return toUserReply(u, s.subs.IsSubscriptionActive(u), false, s.loc), nil
}

// UpdateStyle 设置回复风格
func (s *UserService) UpdateStyle(ctx context.Context, req *StyleRequest) (*UserReply, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	phoneNumber, err := normalizePhone(req.PhoneNumber)
	if err != nil {
		return nil, err
	}
	u, err := s.uc.SetStyle(ctx, phoneNumber, req.Style)
	if err != nil {
		return nil, err
	}
	return toUserReply(u, s.subs.IsSubscriptionActive(u), false, s.loc), nil
}

// TodayEmpty 开启提醒的活跃用户中今天还没有记账的
func (s *UserService) TodayEmpty(ctx context.Context, _ *EmptyRequest) (*TodayEmptyReply, error) {
	today, users, err := s.uc.TodayEmpty(ctx)
	if err != nil {
		return nil, err
	}
	items := make([]*ReminderTarget, 0, len(users))
	for _, u := range users {
		items = append(items, &ReminderTarget{PhoneNumber: u.PhoneNumber, Name: u.Name, ResponseStyle: u.ResponseStyle})
	}
	return &TodayEmptyReply{Date: formatDate(&today, s.loc), Count: len(items), Items: items}, nil
}

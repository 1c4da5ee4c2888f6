package biz

import (
	"context"
	"errors"
	"strings"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/pkg/phone"

	"github.com/go-kratos/kratos/v2/log"
)

// User 用户及其用量台账
type User struct {
	ID                    string
	PhoneNumber           string
	Name                  string
	Plan                  string
	Status                string
	ReminderEnabled       bool
	ResponseStyle         string
	ChatCountMonth        int
	StrukCountMonth       int
	LastResetAt           *time.Time
	SubscriptionStartedAt *time.Time
	SubscriptionExpiresAt *time.Time
	SubscriptionStatus    string
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// NeedsCounterReset 上次重置的年月与 now 不同（或从未重置）
func (u *User) NeedsCounterReset(now time.Time) bool {
	if u.LastResetAt == nil {
		return true
	}
	return u.LastResetAt.In(now.Location()).Format(constants.TimeFormatMonth) != now.Format(constants.TimeFormatMonth)
}

// Count 返回计数器当前值
func (u *User) Count(counter string) int {
	if counter == constants.CounterStruk {
		return u.StrukCountMonth
	}
	return u.ChatCountMonth
}

// ApplyWindow 重新初始化订阅窗口（每次套餐变更都从今天起算，不做累加）
func (u *User) ApplyWindow(w SubscriptionWindow) {
	started := w.StartedAt
	u.SubscriptionStartedAt = &started
	u.SubscriptionExpiresAt = w.ExpiresAt
	u.SubscriptionStatus = constants.SubscriptionStatusActive
}

// SubscriptionWindow 订阅窗口
type SubscriptionWindow struct {
	StartedAt time.Time
	ExpiresAt *time.Time // nil 表示不过期
}

// UserRepo 用户数据层接口
type UserRepo interface {
	GetUserByPhone(ctx context.Context, phoneNumber string) (*User, error)
	GetUserByID(ctx context.Context, userID string) (*User, error)
	// LockUserByPhone / LockUserByID 需在事务内调用（SELECT ... FOR UPDATE）
	LockUserByPhone(ctx context.Context, phoneNumber string) (*User, error)
	LockUserByID(ctx context.Context, userID string) (*User, error)
	CreateUser(ctx context.Context, u *User) error
	UpdateProfile(ctx context.Context, userID string, fields map[string]interface{}) error
	SaveSubscription(ctx context.Context, u *User) error
	ResetCounters(ctx context.Context, userID string, today time.Time) error
	IncrementCounter(ctx context.Context, userID, counter string, n int) error
	DeleteUser(ctx context.Context, userID string) error

	MarkExpired(ctx context.Context, today time.Time) (int64, error)
	ListExpiringBetween(ctx context.Context, from, to time.Time) ([]*User, error)
	ListExpired(ctx context.Context, today time.Time) ([]*User, error)
	ResetStaleCounters(ctx context.Context, monthStart, today time.Time) (int64, error)
	// ListReminderTargets 开启提醒的活跃用户中 [from, to) 内没有交易的用户
	ListReminderTargets(ctx context.Context, from, to time.Time) ([]*User, error)
}

// UserUseCase 用户台账业务逻辑
type UserUseCase struct {
	repo   UserRepo
	tx     Transaction
	locker Locker
	plans  *PlanPolicy
	clock  Clock
	log    *log.Helper
}

// NewUserUseCase 创建用户 UseCase
func NewUserUseCase(repo UserRepo, tx Transaction, locker Locker, plans *PlanPolicy, clock Clock, logger log.Logger) *UserUseCase {
	return &UserUseCase{
		repo:   repo,
		tx:     tx,
		locker: locker,
		plans:  plans,
		clock:  clock,
		log:    log.NewHelper(logger),
	}
}

// NormalizePhone 规范化手机号，无效时返回校验错误
func NormalizePhone(raw string) (string, error) {
	p, ok := phone.Normalize(raw)
	if !ok {
		return "", bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeInvalidPhone, map[string]string{
			"phone_number": "invalid phone number",
		})
	}
	return p, nil
}

// WindowFor 计算套餐的订阅窗口：free 为试用期，付费套餐为 subscription_days，unlimited 不过期
func (uc *UserUseCase) WindowFor(plan string, today time.Time) SubscriptionWindow {
	return windowFor(uc.plans, plan, today)
}

func windowFor(plans *PlanPolicy, plan string, today time.Time) SubscriptionWindow {
	today = StartOfDay(today)
	w := SubscriptionWindow{StartedAt: today}
	if days, ok := plans.SubscriptionDays(plan); ok {
		expires := AddDays(today, days)
		w.ExpiresAt = &expires
	}
	return w
}

// GetByPhone 按手机号查询用户，不存在返回 404
func (uc *UserUseCase) GetByPhone(ctx context.Context, phoneNumber string) (*User, error) {
	u, err := uc.repo.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}
	return u, nil
}

// FindOrCreate 按手机号获取用户，不存在则创建 free 用户并开启 3 天试用。
// 并发首次请求只会创建一行：分布式锁串行化同一手机号，唯一索引冲突时重新读取胜出者。
func (uc *UserUseCase) FindOrCreate(ctx context.Context, phoneNumber, name string) (*User, bool, error) {
	u, err := uc.repo.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, false, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u != nil {
		return uc.fillName(ctx, u, name)
	}

	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyUserLock+phoneNumber)
	if err != nil {
		return nil, false, bizErrors.WrapError(err, bizErrors.ErrCodeLockFailed)
	}
	defer unlock()

	// 拿到锁后再查一次
	u, err = uc.repo.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, false, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u != nil {
		return uc.fillName(ctx, u, name)
	}

	now := uc.clock.Now()
	today := StartOfDay(now)
	u = &User{
		PhoneNumber:     phoneNumber,
		Name:            strings.TrimSpace(name),
		Plan:            constants.PlanFree,
		Status:          constants.UserStatusActive,
		ReminderEnabled: true,
		ResponseStyle:   constants.ResponseStyleSantai,
		LastResetAt:     &today,
	}
	u.ApplyWindow(uc.WindowFor(constants.PlanFree, now))

	if err := uc.repo.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, ErrDuplicateKey) {
			return nil, false, bizErrors.WrapError(err, bizErrors.ErrCodeUserCreateFailed)
		}
		// 并发创建失败，读取胜出者的记录
		winner, getErr := uc.repo.GetUserByPhone(ctx, phoneNumber)
		if getErr != nil {
			return nil, false, bizErrors.WrapError(getErr, bizErrors.ErrCodeDatabase)
		}
		if winner == nil {
			uc.log.Warnf("duplicate user insert but no row found: phone=%s", phoneNumber)
			return nil, false, bizErrors.WrapError(err, bizErrors.ErrCodeUserCreateFailed)
		}
		return winner, false, nil
	}

	uc.log.Infof("user created: id=%s, phone=%s", u.ID, u.PhoneNumber)
	return u, true, nil
}

func (uc *UserUseCase) fillName(ctx context.Context, u *User, name string) (*User, bool, error) {
	name = strings.TrimSpace(name)
	if name == "" || u.Name != "" {
		return u, false, nil
	}
	if err := uc.repo.UpdateProfile(ctx, u.ID, map[string]interface{}{"name": name}); err != nil {
		return nil, false, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	u.Name = name
	return u, false, nil
}

// SetReminder 开关每日提醒
func (uc *UserUseCase) SetReminder(ctx context.Context, phoneNumber string, enabled bool) (*User, error) {
	u, err := uc.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateProfile(ctx, u.ID, map[string]interface{}{"reminder_enabled": enabled}); err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	u.ReminderEnabled = enabled
	return u, nil
}

// TodayEmpty 今天还没有记账、需要发送提醒的用户
func (uc *UserUseCase) TodayEmpty(ctx context.Context) (time.Time, []*User, error) {
	today := StartOfDay(uc.clock.Now())
	users, err := uc.repo.ListReminderTargets(ctx, today, AddDays(today, 1))
	if err != nil {
		return today, nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return today, users, nil
}

var responseStyles = map[string]string{
	"santai": constants.ResponseStyleSantai,
	"netral": constants.ResponseStyleNetral,
	"biasa":  constants.ResponseStyleNetral,
	"formal": constants.ResponseStyleFormal,
	"gaul":   constants.ResponseStyleGaul,
}

// SetStyle 设置回复风格（biasa 视为 netral）
func (uc *UserUseCase) SetStyle(ctx context.Context, phoneNumber, style string) (*User, error) {
	normalized, ok := responseStyles[strings.ToLower(strings.TrimSpace(style))]
	if !ok {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeInvalidStyle, map[string]string{
			"style": "allowed: santai, netral/biasa, formal, gaul",
		})
	}
	u, err := uc.GetByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.UpdateProfile(ctx, u.ID, map[string]interface{}{"response_style": normalized}); err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	u.ResponseStyle = normalized
	return u, nil
}

// Delete 管理员删除用户（级联删除交易、预算、令牌和支付记录）
func (uc *UserUseCase) Delete(ctx context.Context, userID string) error {
	u, err := uc.repo.GetUserByID(ctx, userID)
	if err != nil {
		return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}
	if err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		return uc.repo.DeleteUser(ctx, userID)
	}); err != nil {
		return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	uc.log.Infof("user deleted: id=%s, phone=%s", u.ID, u.PhoneNumber)
	return nil
}

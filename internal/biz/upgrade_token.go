package biz

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/google/uuid"
)

// UpgradeToken 单次使用、限时的升级令牌
type UpgradeToken struct {
	ID          string
	PhoneNumber string
	Token       string
	UserID      *string
	ExpiresAt   time.Time
	UsedAt      *time.Time
	CreatedAt   time.Time
}

// IsValid 未使用且 expires_at 严格晚于 now
func (t *UpgradeToken) IsValid(now time.Time) bool {
	return t.UsedAt == nil && t.ExpiresAt.After(now)
}

// UpgradeLink 发给用户的升级链接
type UpgradeLink struct {
	Token     *UpgradeToken
	URL       string
	Plan      string
	ExpiresAt time.Time
}

// UpgradeTokenRepo 升级令牌数据层接口
type UpgradeTokenRepo interface {
	// DeleteActiveTokens 删除手机号下未使用且未过期的令牌
	DeleteActiveTokens(ctx context.Context, phoneNumber string, now time.Time) (int64, error)
	CreateToken(ctx context.Context, t *UpgradeToken) error
	GetTokenByValue(ctx context.Context, token string) (*UpgradeToken, error)
	// MarkTokenUsed 只更新 used_at 为空的行，返回是否更新
	MarkTokenUsed(ctx context.Context, tokenID string, usedAt time.Time) (bool, error)
}

// UpgradeTokenUseCase 升级令牌签发与校验
type UpgradeTokenUseCase struct {
	repo     UpgradeTokenRepo
	userRepo UserRepo
	tx       Transaction
	locker   Locker
	plans    *PlanPolicy
	clock    Clock
	conf     *ServiceConfig
	log      *log.Helper
	metrics  *metrics.CatatUangMetrics
}

// NewUpgradeTokenUseCase 创建升级令牌 UseCase
func NewUpgradeTokenUseCase(repo UpgradeTokenRepo, userRepo UserRepo, tx Transaction, locker Locker, plans *PlanPolicy, clock Clock, conf *ServiceConfig, logger log.Logger) *UpgradeTokenUseCase {
	return &UpgradeTokenUseCase{
		repo:     repo,
		userRepo: userRepo,
		tx:       tx,
		locker:   locker,
		plans:    plans,
		clock:    clock,
		conf:     conf,
		log:      log.NewHelper(logger),
		metrics:  metrics.GetMetrics(),
	}
}

// newTokenValue 64 位十六进制，来自两个 crypto/rand 生成的 v4 UUID
func newTokenValue() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "") + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// GenerateForUser 签发新令牌，同一手机号之前未使用且未过期的令牌全部作废
func (uc *UpgradeTokenUseCase) GenerateForUser(ctx context.Context, phoneNumber string, userID *string) (*UpgradeToken, error) {
	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyTokenLock+phoneNumber)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeLockFailed)
	}
	defer unlock()

	now := uc.clock.Now()
	t := &UpgradeToken{
		PhoneNumber: phoneNumber,
		UserID:      userID,
		ExpiresAt:   now.Add(uc.conf.TokenTTL),
	}
	// 唯一约束冲突后事务已不可用，换新令牌值在新事务中重试一次
	for i := 0; i < 2; i++ {
		t.ID = ""
		t.Token = newTokenValue()
		err = uc.tx.InTx(ctx, func(ctx context.Context) error {
			return uc.issue(ctx, t, now)
		})
		if err == nil || !errors.Is(err, ErrDuplicateKey) {
			break
		}
		uc.log.Warnf("upgrade token collision, regenerating: phone=%s", phoneNumber)
	}
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeTokenCreateFailed)
	}
	if uc.metrics != nil {
		uc.metrics.UpgradeTokenIssued.Inc()
	}
	return t, nil
}

// issue 在事务内作废旧令牌并写入新令牌
func (uc *UpgradeTokenUseCase) issue(ctx context.Context, t *UpgradeToken, now time.Time) error {
	// 用户行锁串行化同一手机号的并发签发
	if _, err := uc.userRepo.LockUserByPhone(ctx, t.PhoneNumber); err != nil {
		return err
	}
	deleted, err := uc.repo.DeleteActiveTokens(ctx, t.PhoneNumber, now)
	if err != nil {
		return err
	}
	if deleted > 0 {
		uc.log.Infof("invalidated %d previous upgrade token(s): phone=%s", deleted, t.PhoneNumber)
	}
	return uc.repo.CreateToken(ctx, t)
}

// FindValid 返回有效令牌；不存在、已过期、已使用对外统一为 not found
func (uc *UpgradeTokenUseCase) FindValid(ctx context.Context, token string) (*UpgradeToken, error) {
	if len(token) != constants.UpgradeTokenLength {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeTokenNotFound)
	}
	t, err := uc.repo.GetTokenByValue(ctx, token)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if t == nil || !t.IsValid(uc.clock.Now()) {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeTokenNotFound)
	}
	return t, nil
}

// MarkAsUsed 单向写入 used_at；已使用的令牌保持原值
func (uc *UpgradeTokenUseCase) MarkAsUsed(ctx context.Context, tokenID string) error {
	if _, err := uc.repo.MarkTokenUsed(ctx, tokenID, uc.clock.Now()); err != nil {
		return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	return nil
}

// GenerateLink 为已注册用户生成升级链接；指定 plan 时直接跳转结账页
func (uc *UpgradeTokenUseCase) GenerateLink(ctx context.Context, phoneNumber, plan string) (*UpgradeLink, error) {
	if plan != "" && !uc.plans.Purchasable(plan) {
		return nil, bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodePlanUnavailable, map[string]string{
			"plan": "plan is not available for upgrade",
		})
	}
	u, err := uc.userRepo.GetUserByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}

	userID := u.ID
	t, err := uc.GenerateForUser(ctx, phoneNumber, &userID)
	if err != nil {
		return nil, err
	}
	return &UpgradeLink{
		Token:     t,
		URL:       uc.linkURL(t.Token, plan),
		Plan:      plan,
		ExpiresAt: t.ExpiresAt,
	}, nil
}

func (uc *UpgradeTokenUseCase) linkURL(token, plan string) string {
	if plan == "" {
		return uc.conf.FrontendURL + "/upgrade/" + token
	}
	return uc.conf.FrontendURL + "/checkout?token=" + url.QueryEscape(token) + "&plan=" + url.QueryEscape(plan)
}

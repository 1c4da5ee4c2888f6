package biz

import (
	"context"
	"strconv"
	"time"

	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
)

// QuotaStatus 配额检查结果，Limit/Remaining 为 nil 表示不限
type QuotaStatus struct {
	Counter   string `json:"counter"`
	Plan      string `json:"plan"`
	Allowed   bool   `json:"allowed"`
	Limit     *int   `json:"limit"`
	Used      int    `json:"used"`
	Remaining *int   `json:"remaining"`
}

// QuotaUseCase 配额引擎：按套餐计算月度额度，串行化检查与扣减
type QuotaUseCase struct {
	repo    UserRepo
	tx      Transaction
	locker  Locker
	plans   *PlanPolicy
	clock   Clock
	log     *log.Helper
	metrics *metrics.CatatUangMetrics
}

// NewQuotaUseCase 创建配额 UseCase
func NewQuotaUseCase(repo UserRepo, tx Transaction, locker Locker, plans *PlanPolicy, clock Clock, logger log.Logger) *QuotaUseCase {
	return &QuotaUseCase{
		repo:    repo,
		tx:      tx,
		locker:  locker,
		plans:   plans,
		clock:   clock,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// GetChatLimit 套餐的月度聊天额度，ok=false 表示不限
func (uc *QuotaUseCase) GetChatLimit(plan string) (int, bool) {
	return uc.plans.ChatLimit(plan)
}

// GetStrukLimit 套餐的月度小票额度，ok=false 表示不限
func (uc *QuotaUseCase) GetStrukLimit(plan string) (int, bool) {
	return uc.plans.StrukLimit(plan)
}

// Evaluate 计算 u 再消耗 n 个单位是否允许（不访问存储，调用前需已按月重置）
func (uc *QuotaUseCase) Evaluate(u *User, counter string, n int) QuotaStatus {
	used := u.Count(counter)
	st := QuotaStatus{Counter: counter, Plan: u.Plan, Used: used, Allowed: true}
	limit, limited := uc.plans.Limit(u.Plan, counter)
	if !limited {
		return st
	}
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	st.Limit = &limit
	st.Remaining = &remaining
	if n < 1 {
		n = 1
	}
	st.Allowed = used+n <= limit
	return st
}

// ResetMonthlyCountersIfNeeded 跨月后首次访问时清零两个计数器并记录重置日期。
// 需在锁定用户行的事务内调用。
func (uc *QuotaUseCase) ResetMonthlyCountersIfNeeded(ctx context.Context, u *User) (bool, error) {
	now := uc.clock.Now()
	if !u.NeedsCounterReset(now) {
		return false, nil
	}
	today := StartOfDay(now)
	if err := uc.repo.ResetCounters(ctx, u.ID, today); err != nil {
		return false, err
	}
	u.ChatCountMonth = 0
	u.StrukCountMonth = 0
	u.LastResetAt = &today
	if uc.metrics != nil {
		uc.metrics.QuotaResetTotal.Inc()
	}
	return true, nil
}

// CanUseChat 检查本月是否还能发送聊天消息
func (uc *QuotaUseCase) CanUseChat(ctx context.Context, phoneNumber string) (*QuotaStatus, error) {
	return uc.CanUse(ctx, phoneNumber, constants.CounterChat)
}

// CanUseStruk 检查本月是否还能上传小票
func (uc *QuotaUseCase) CanUseStruk(ctx context.Context, phoneNumber string) (*QuotaStatus, error) {
	return uc.CanUse(ctx, phoneNumber, constants.CounterStruk)
}

// CanUse 只读检查（隐含按月重置）
func (uc *QuotaUseCase) CanUse(ctx context.Context, phoneNumber, counter string) (*QuotaStatus, error) {
	if err := validCounter(counter); err != nil {
		return nil, err
	}
	startTime := time.Now()
	defer uc.observe(counter, startTime)

	var st QuotaStatus
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := uc.lockUser(ctx, phoneNumber)
		if err != nil {
			return err
		}
		if _, err := uc.ResetMonthlyCountersIfNeeded(ctx, u); err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		st = uc.Evaluate(u, counter, 1)
		return nil
	})
	if err != nil {
		uc.countCheck(counter, constants.QuotaCheckResultError)
		return nil, err
	}
	uc.countCheck(counter, checkResult(st.Allowed))
	return &st, nil
}

// Limits 同时返回聊天和小票两个计数器的状态
func (uc *QuotaUseCase) Limits(ctx context.Context, phoneNumber string) (*User, *QuotaStatus, *QuotaStatus, error) {
	var (
		user        *User
		chat, struk QuotaStatus
	)
	err := uc.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := uc.lockUser(ctx, phoneNumber)
		if err != nil {
			return err
		}
		if _, err := uc.ResetMonthlyCountersIfNeeded(ctx, u); err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		user = u
		chat = uc.Evaluate(u, constants.CounterChat, 1)
		struk = uc.Evaluate(u, constants.CounterStruk, 1)
		return nil
	})
	if err != nil {
		return nil, nil, nil, err
	}
	return user, &chat, &struk, nil
}

// IncrementChat 检查并 +1 聊天计数，检查与累加在同一个临界区内
func (uc *QuotaUseCase) IncrementChat(ctx context.Context, phoneNumber string) (*QuotaStatus, error) {
	return uc.Consume(ctx, phoneNumber, constants.CounterChat, 1)
}

// IncrementStruk 检查并 +1 小票计数
func (uc *QuotaUseCase) IncrementStruk(ctx context.Context, phoneNumber string) (*QuotaStatus, error) {
	return uc.Consume(ctx, phoneNumber, constants.CounterStruk, 1)
}

// Consume 检查并扣减 n 个单位（全部或全不）。
// 锁定用户行、按需重置、检查、扣减在同一个事务内完成。
func (uc *QuotaUseCase) Consume(ctx context.Context, phoneNumber, counter string, n int) (*QuotaStatus, error) {
	return uc.WithQuota(ctx, phoneNumber, counter, n, nil)
}

// WithQuota 在 Consume 的临界区内额外执行 fn（例如写入交易记录），fn 失败时扣减一并回滚
func (uc *QuotaUseCase) WithQuota(ctx context.Context, phoneNumber, counter string, n int, fn func(ctx context.Context, u *User) error) (*QuotaStatus, error) {
	if err := validCounter(counter); err != nil {
		return nil, err
	}
	startTime := time.Now()
	defer uc.observe(counter, startTime)

	unlock, err := uc.locker.Lock(ctx, constants.RedisKeyQuotaLock+phoneNumber)
	if err != nil {
		uc.countCheck(counter, constants.QuotaCheckResultError)
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeLockFailed)
	}
	defer unlock()

	var st QuotaStatus
	err = uc.tx.InTx(ctx, func(ctx context.Context) error {
		u, err := uc.lockUser(ctx, phoneNumber)
		if err != nil {
			return err
		}
		if _, err := uc.ResetMonthlyCountersIfNeeded(ctx, u); err != nil {
			return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
		}
		if n > 0 {
			st = uc.Evaluate(u, counter, n)
			if !st.Allowed {
				return quotaExceeded(st, n)
			}
			if err := uc.repo.IncrementCounter(ctx, u.ID, counter, n); err != nil {
				return bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
			}
			addCount(u, counter, n)
		}
		// 返回扣减后的用量，Allowed 表示本次请求已放行
		st = uc.Evaluate(u, counter, 1)
		st.Allowed = true
		if fn != nil {
			return fn(ctx, u)
		}
		return nil
	})
	if err != nil {
		if bizErrors.Is(err, bizErrors.ErrCodeQuotaExceeded) {
			uc.countCheck(counter, constants.QuotaCheckResultDenied)
		} else {
			uc.countCheck(counter, constants.QuotaCheckResultError)
		}
		return nil, err
	}
	uc.countCheck(counter, constants.QuotaCheckResultAllowed)
	if uc.metrics != nil && n > 0 {
		uc.metrics.QuotaConsumeTotal.WithLabelValues(counter, st.Plan).Inc()
		uc.metrics.QuotaConsumeAmount.WithLabelValues(counter).Add(float64(n))
	}
	return &st, nil
}

func (uc *QuotaUseCase) lockUser(ctx context.Context, phoneNumber string) (*User, error) {
	u, err := uc.repo.LockUserByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeDatabase)
	}
	if u == nil {
		return nil, bizErrors.NewBizError(bizErrors.ErrCodeUserNotFound)
	}
	return u, nil
}

func (uc *QuotaUseCase) observe(counter string, startTime time.Time) {
	if uc.metrics != nil {
		uc.metrics.QuotaCheckDuration.WithLabelValues(counter).Observe(time.Since(startTime).Seconds())
	}
}

func (uc *QuotaUseCase) countCheck(counter, result string) {
	if uc.metrics != nil {
		uc.metrics.QuotaCheckTotal.WithLabelValues(counter, result).Inc()
	}
}

func checkResult(allowed bool) string {
	if allowed {
		return constants.QuotaCheckResultAllowed
	}
	return constants.QuotaCheckResultDenied
}

func addCount(u *User, counter string, n int) {
	if counter == constants.CounterStruk {
		u.StrukCountMonth += n
		return
	}
	u.ChatCountMonth += n
}

func validCounter(counter string) error {
	if counter != constants.CounterChat && counter != constants.CounterStruk {
		return bizErrors.NewBizError(bizErrors.ErrCodeUnknownCounter)
	}
	return nil
}

// quotaExceeded 携带当前用量，调用方可以渲染提示信息
func quotaExceeded(st QuotaStatus, requested int) error {
	md := map[string]string{
		"counter":   st.Counter,
		"plan":      st.Plan,
		"used":      strconv.Itoa(st.Used),
		"requested": strconv.Itoa(requested),
	}
	if st.Limit != nil {
		md["limit"] = strconv.Itoa(*st.Limit)
	}
	if st.Remaining != nil {
		md["remaining"] = strconv.Itoa(*st.Remaining)
	}
	return bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeQuotaExceeded, md)
}

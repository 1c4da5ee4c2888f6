package data

import (
	"context"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	"catatuang-service/internal/metrics"

	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redsync/redsync/v4"
)

// lockExpiry 锁的自动过期时间，覆盖单个请求的临界区
const lockExpiry = 5 * time.Second

// redsyncLocker 基于 redsync 的分布式锁
type redsyncLocker struct {
	sync    *redsync.Redsync
	log     *log.Helper
	metrics *metrics.CatatUangMetrics
}

// noopLocker 未配置 Redis 时使用，串行化由数据库行锁保证
type noopLocker struct{}

func (noopLocker) Lock(context.Context, string) (func(), error) {
	return func() {}, nil
}

// NewLocker 创建分布式锁（返回 biz.Locker 接口）
func NewLocker(sync *redsync.Redsync, logger log.Logger) biz.Locker {
	if sync == nil {
		return noopLocker{}
	}
	return &redsyncLocker{
		sync:    sync,
		log:     log.NewHelper(logger),
		metrics: metrics.GetMetrics(),
	}
}

// Lock 获取锁，返回的 unlock 可以安全地多次调用
func (l *redsyncLocker) Lock(ctx context.Context, key string) (func(), error) {
	lockStartTime := time.Now()
	mutex := l.sync.NewMutex(key, redsync.WithExpiry(lockExpiry))
	if err := mutex.LockContext(ctx); err != nil {
		l.log.Errorf("failed to acquire lock: key=%s, error=%v", key, err)
		l.observe(constants.LockResultFailed, lockStartTime)
		return nil, err
	}
	l.observe(constants.LockResultSuccess, lockStartTime)

	released := false
	return func() {
		if released {
			return
		}
		released = true
		if ok, err := mutex.Unlock(); !ok || err != nil {
			l.log.Warnf("failed to unlock: key=%s, error=%v", key, err)
		}
	}, nil
}

func (l *redsyncLocker) observe(result string, startTime time.Time) {
	if l.metrics != nil {
		l.metrics.LockAcquireTotal.WithLabelValues(result).Inc()
		l.metrics.LockAcquireDuration.Observe(time.Since(startTime).Seconds())
	}
}

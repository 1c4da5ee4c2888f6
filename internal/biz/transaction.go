package biz

import (
	"context"
	"errors"
)

// ErrDuplicateKey 唯一约束冲突（并发创建时由数据层翻译）
var ErrDuplicateKey = errors.New("duplicate key")

// Transaction 数据库事务，fn 内的 ctx 携带事务句柄，repo 通过 ctx 取用
type Transaction interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Locker 分布式锁（未配置 Redis 时为空实现）
type Locker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

func isDuplicate(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}

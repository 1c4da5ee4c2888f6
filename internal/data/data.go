package data

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/conf"
	"catatuang-service/internal/data/model"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/apache/rocketmq-client-go/v2/producer"
	"github.com/glebarez/sqlite"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/google/wire"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ProviderSet is data providers.
var ProviderSet = wire.NewSet(
	NewDB,
	NewRedis,
	NewRedsync,
	NewProducer,
	NewData,
	NewTransaction,
	NewLocker,
	NewEventPublisher,
	NewPakasirGateway,
	NewUserRepo,
	NewBudgetRepo,
	NewUpgradeTokenRepo,
	NewPaymentRepo,
	NewPricingRepo,
	NewTransactionRecordRepo,
	NewPendingUploadRepo,
)

// Data 数据层结构体
type Data struct {
	db  *gorm.DB
	rdb *redis.Client // 可能为 nil（未配置 Redis）
	mq  rocketmq.Producer
	log *log.Helper
}

// contextTxKey 事务句柄在 ctx 中的 key
type contextTxKey struct{}

// NewDB 创建数据库连接，driver 支持 mysql（默认）/ postgres / sqlite
func NewDB(c *conf.Bootstrap) (*gorm.DB, error) {
	if c.Data == nil || c.Data.Database == nil {
		return nil, fmt.Errorf("database config is nil")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(c.Data.Database.Driver) {
	case "", "mysql":
		dialector = mysql.Open(c.Data.Database.Source)
	case "postgres", "postgresql":
		dialector = postgres.Open(c.Data.Database.Source)
	case "sqlite":
		dialector = sqlite.Open(c.Data.Database.Source)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", c.Data.Database.Driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, err
	}
	if c.Data.Database.AutoMigrate {
		if err := db.AutoMigrate(model.All()...); err != nil {
			return nil, fmt.Errorf("auto migrate failed: %w", err)
		}
	}
	return db, nil
}

// NewRedis 创建 Redis 连接，未配置 addr 时返回 nil（缓存和分布式锁降级）
func NewRedis(c *conf.Bootstrap) (*redis.Client, error) {
	if c.Data == nil || c.Data.Redis == nil || c.Data.Redis.Addr == "" {
		return nil, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         c.Data.Redis.Addr,
		Password:     c.Data.Redis.Password,
		DB:           c.Data.Redis.DB,
		ReadTimeout:  c.Data.Redis.ReadTimeout.AsDuration(),
		WriteTimeout: c.Data.Redis.WriteTimeout.AsDuration(),
	})

	// 测试连接
	if err := rdb.Ping(rdb.Context()).Err(); err != nil {
		return nil, err
	}

	return rdb, nil
}

// NewRedsync 基于同一个 Redis 连接创建分布式锁
func NewRedsync(rdb *redis.Client) *redsync.Redsync {
	if rdb == nil {
		return nil
	}
	return redsync.New(goredis.NewPool(rdb))
}

// NewProducer 创建 RocketMQ 生产者，未启用时返回 nil
func NewProducer(c *conf.Bootstrap, logger log.Logger) (rocketmq.Producer, error) {
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled {
		return nil, nil
	}
	mq := c.Data.Rocketmq
	p, err := rocketmq.NewProducer(
		producer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		producer.WithGroupName(mq.GroupName+"_producer"),
		producer.WithRetry(int(mq.RetryTimes)),
	)
	if err != nil {
		return nil, err
	}
	if err := p.Start(); err != nil {
		// 开发环境中 RocketMQ 可能不可用，事件发布降级为空实现
		log.NewHelper(logger).Errorf("failed to start rocketmq producer: %v", err)
		return nil, nil
	}
	return p, nil
}

// NewData 创建数据层实例
func NewData(logger log.Logger, db *gorm.DB, rdb *redis.Client, mq rocketmq.Producer) (*Data, func(), error) {
	helper := log.NewHelper(logger)
	cleanup := func() {
		helper.Info("closing the data resources")
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
		if rdb != nil {
			if err := rdb.Close(); err != nil {
				helper.Errorf("failed to close redis: %v", err)
			}
		}
		if mq != nil {
			if err := mq.Shutdown(); err != nil {
				helper.Errorf("failed to shutdown rocketmq producer: %v", err)
			}
		}
	}

	return &Data{
		db:  db,
		rdb: rdb,
		mq:  mq,
		log: helper,
	}, cleanup, nil
}

// DB 返回 ctx 中的事务句柄，没有事务时返回普通连接
func (d *Data) DB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return tx
	}
	return d.db.WithContext(ctx)
}

// InTx 实现 biz.Transaction；已在事务中时直接复用
func (d *Data) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(contextTxKey{}).(*gorm.DB); ok {
		return fn(ctx)
	}
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(context.WithValue(ctx, contextTxKey{}, tx))
	})
}

// NewTransaction 返回 biz.Transaction
func NewTransaction(d *Data) biz.Transaction {
	return d
}

// translateError 把唯一约束冲突统一成 biz.ErrDuplicateKey
func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %v", biz.ErrDuplicateKey, err)
	}
	msg := err.Error()
	if strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "duplicate key") {
		return fmt.Errorf("%w: %v", biz.ErrDuplicateKey, err)
	}
	return err
}

// cacheTimeout Redis 操作超时，缓存失败不影响主流程
const cacheTimeout = time.Second

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"

	"github.com/gaoyong06/go-pkg/logger"
	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	_ "go.uber.org/automaxprocs"
	_ "time/tzdata"
)

var (
	flagconf string
)

// CronApp 定时任务依赖
type CronApp struct {
	subscriptions *biz.SubscriptionUseCase
	uploads       *biz.PendingUploadUseCase
}

func init() {
	flag.StringVar(&flagconf, "conf", "../../configs/config.yaml", "config path, eg: -conf config.yaml")
}

func main() {
	flag.Parse()

	_ = godotenv.Load()

	c := config.New(
		config.WithSource(
			env.NewSource("CATATUANG_"),
			file.NewSource(flagconf),
		),
	)
	defer c.Close()

	if err := c.Load(); err != nil {
		panic(err)
	}

	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		panic(err)
	}

	logConfig := &logger.Config{
		Level:         "info",
		Format:        "json",
		Output:        "stdout",
		FilePath:      "logs/catatuang-cron.log",
		MaxSize:       100,
		MaxAge:        30,
		MaxBackups:    10,
		Compress:      true,
		EnableConsole: true,
	}

	loggerInstance := logger.NewLogger(logConfig)

	loggerInstance = log.With(loggerInstance,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", "catatuang-cron",
	)

	logHelper := log.NewHelper(loggerInstance)

	app, cleanup, err := wireApp(&bc, loggerInstance)
	if err != nil {
		panic(err)
	}
	defer cleanup()

	// 秒级调度，时区与订阅日期一致
	tz := constants.DefaultTimezone
	if bc.Subscription != nil && bc.Subscription.Timezone != "" {
		tz = bc.Subscription.Timezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		panic(err)
	}
	cronScheduler := cron.New(cron.WithSeconds(), cron.WithLocation(loc))

	// 订阅过期标记 - 每天 00:05 执行
	_, err = cronScheduler.AddFunc("0 5 0 * * *", func() {
		logHelper.Info("[CRON] Starting subscription expiry sweep...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		count, err := app.subscriptions.MarkExpired(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error marking subscriptions expired: %v", err)
			return
		}
		logHelper.Infof("[CRON] Subscription expiry sweep completed: count=%d", count)
	})
	if err != nil {
		logHelper.Errorf("Failed to add subscription expiry job: %v", err)
	}

	// 计数器兜底重置 - 每月1日 00:00 执行（正常情况下请求路径已按需重置）
	_, err = cronScheduler.AddFunc("0 0 0 1 * *", func() {
		logHelper.Info("[CRON] Starting monthly counter reset...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()

		count, err := app.subscriptions.ResetStaleCounters(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error resetting counters: %v", err)
			return
		}
		logHelper.Infof("[CRON] Monthly counter reset completed: count=%d", count)
	})
	if err != nil {
		logHelper.Errorf("Failed to add counter reset job: %v", err)
	}

	// 待确认上传超时清理 - 每 5 分钟执行
	_, err = cronScheduler.AddFunc("0 */5 * * * *", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		count, err := app.uploads.ExpireStale(ctx)
		if err != nil {
			logHelper.Errorf("[CRON] Error expiring pending uploads: %v", err)
			return
		}
		if count > 0 {
			logHelper.Infof("[CRON] Pending uploads expired: count=%d", count)
		}
	})
	if err != nil {
		logHelper.Errorf("Failed to add upload expiry job: %v", err)
	}

	cronScheduler.Start()
	logHelper.Info("========================================")
	logHelper.Info("Cron jobs started successfully")
	logHelper.Info("Scheduled jobs:")
	logHelper.Info("  - Subscription expiry: Every day at 00:05")
	logHelper.Info("  - Counter reset: Every month on the 1st at 00:00")
	logHelper.Info("  - Pending upload expiry: Every 5 minutes")
	logHelper.Info("========================================")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logHelper.Info("Shutting down gracefully...")

	ctx := cronScheduler.Stop()
	select {
	case <-ctx.Done():
		logHelper.Info("Cron jobs stopped gracefully")
	case <-time.After(5 * time.Second):
		logHelper.Info("Cron jobs forced to stop after timeout")
	}
}

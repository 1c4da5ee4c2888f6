package server

import (
	"context"

	"catatuang-service/internal/conf"
	"catatuang-service/internal/service"

	"github.com/apache/rocketmq-client-go/v2"
	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
)

// MQConsumerServer 消费网关转发到 RocketMQ 的支付回调，交给与 HTTP 相同的对账逻辑
type MQConsumerServer struct {
	c       rocketmq.PushConsumer
	webhook *service.WebhookService
	topic   string
	log     *log.Helper
	enabled bool
}

// NewMQConsumerServer 创建回调消费者；未启用或未配置 topic 时为空实现
func NewMQConsumerServer(c *conf.Bootstrap, webhook *service.WebhookService, logger log.Logger) *MQConsumerServer {
	helper := log.NewHelper(logger)
	if c.Data == nil || c.Data.Rocketmq == nil || !c.Data.Rocketmq.Enabled || c.Data.Rocketmq.WebhookTopic == "" {
		return &MQConsumerServer{log: helper}
	}
	mq := c.Data.Rocketmq

	r, err := rocketmq.NewPushConsumer(
		consumer.WithNsResolver(primitive.NewPassthroughResolver(mq.NameServers)),
		consumer.WithGroupName(mq.GroupName),
		consumer.WithRetry(int(mq.RetryTimes)),
		consumer.WithConsumeMessageBatchMaxSize(1),
	)
	if err != nil {
		helper.Errorf("init webhook consumer error: %v", err)
		return &MQConsumerServer{log: helper}
	}

	return &MQConsumerServer{
		c:       r,
		webhook: webhook,
		topic:   mq.WebhookTopic,
		log:     helper,
		enabled: true,
	}
}

// Start 订阅并启动消费者
func (s *MQConsumerServer) Start(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		s.log.Infof("MQConsumerServer is disabled, skipping startup")
		return nil
	}

	s.log.Infof("Starting MQConsumerServer, topic: %s", s.topic)
	if err := s.c.Subscribe(s.topic, consumer.MessageSelector{}, s.handler); err != nil {
		// 开发环境中 RocketMQ 可能不可用，不阻止应用启动
		s.log.Errorf("Failed to subscribe to topic %s: %v", s.topic, err)
		return nil
	}
	if err := s.c.Start(); err != nil {
		s.log.Errorf("Failed to start RocketMQ consumer: %v", err)
		return nil
	}
	return nil
}

// Stop 停止消费者
func (s *MQConsumerServer) Stop(ctx context.Context) error {
	if !s.enabled || s.c == nil {
		return nil
	}
	s.log.Info("Stopping MQConsumerServer")
	return s.c.Shutdown()
}

// handler 基础设施错误稍后重试，无效 payload 记录后丢弃
func (s *MQConsumerServer) handler(ctx context.Context, msgs ...*primitive.MessageExt) (consumer.ConsumeResult, error) {
	for _, msg := range msgs {
		out, err := s.webhook.HandlePayload(ctx, msg.Body)
		if err == nil {
			s.log.Infof("webhook message consumed: msg_id=%s, order_id=%s, result=%s", msg.MsgId, out.OrderID, out.Result)
			continue
		}
		if retryable(err) {
			s.log.Errorf("webhook message failed, retry later: msg_id=%s, err=%v", msg.MsgId, err)
			return consumer.ConsumeRetryLater, nil
		}
		s.log.Warnf("webhook message dropped: msg_id=%s, err=%v, body=%s", msg.MsgId, err, string(msg.Body))
	}
	return consumer.ConsumeSuccess, nil
}

func retryable(err error) bool {
	return kerrors.FromError(err).Code >= 500
}

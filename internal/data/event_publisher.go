package data

import (
	"context"
	"encoding/json"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/conf"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

// defaultEventTopic 未配置 event_topic 时使用
const defaultEventTopic = "catatuang_subscription_events"

// mqEventPublisher 通过 RocketMQ 发布订阅事件
type mqEventPublisher struct {
	data  *Data
	topic string
	log   *log.Helper
}

// noopEventPublisher 未启用 RocketMQ 时只记录日志
type noopEventPublisher struct {
	log *log.Helper
}

func (p *noopEventPublisher) Publish(ctx context.Context, events ...*biz.SubscriptionEvent) error {
	for _, e := range events {
		p.log.WithContext(ctx).Debugf("event dropped (mq disabled): type=%s, user_id=%s", e.Type, e.UserID)
	}
	return nil
}

// NewEventPublisher 创建事件发布器（返回 biz.EventPublisher 接口）
func NewEventPublisher(c *conf.Bootstrap, data *Data, logger log.Logger) biz.EventPublisher {
	if data.mq == nil {
		return &noopEventPublisher{log: log.NewHelper(logger)}
	}
	topic := defaultEventTopic
	if c.Data != nil && c.Data.Rocketmq != nil && c.Data.Rocketmq.EventTopic != "" {
		topic = c.Data.Rocketmq.EventTopic
	}
	return &mqEventPublisher{
		data:  data,
		topic: topic,
		log:   log.NewHelper(logger),
	}
}

// Publish 同步发送，事件类型作为 tag，用户 ID 和订单号作为 key
func (p *mqEventPublisher) Publish(ctx context.Context, events ...*biz.SubscriptionEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]*primitive.Message, 0, len(events))
	for _, e := range events {
		body, err := json.Marshal(e)
		if err != nil {
			return err
		}
		keys := []string{e.UserID}
		if e.OrderID != "" {
			keys = append(keys, e.OrderID)
		}
		msgs = append(msgs, primitive.NewMessage(p.topic, body).WithTag(e.Type).WithKeys(keys))
	}
	if _, err := p.data.mq.SendSync(ctx, msgs...); err != nil {
		p.log.Errorf("send rocketmq failed: topic=%s, count=%d, error=%v", p.topic, len(msgs), err)
		return err
	}
	return nil
}

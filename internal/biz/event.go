package biz

import (
	"context"
	"time"
)

// SubscriptionEvent 发送到 RocketMQ 的订阅事件，供工作流引擎推送 WhatsApp 通知
type SubscriptionEvent struct {
	Type         string     `json:"type"`
	UserID       string     `json:"user_id"`
	PhoneNumber  string     `json:"phone_number"`
	OrderID      string     `json:"order_id,omitempty"`
	PreviousPlan string     `json:"previous_plan,omitempty"`
	Plan         string     `json:"plan"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	OccurredAt   time.Time  `json:"occurred_at"`
}

// EventPublisher 事件发布（未启用 MQ 时为空实现）
type EventPublisher interface {
	Publish(ctx context.Context, events ...*SubscriptionEvent) error
}

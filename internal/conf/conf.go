package conf

import (
	"encoding/json"
	"fmt"
	"time"
)

// Bootstrap 服务配置根节点（由 kratos config Scan 填充）
type Bootstrap struct {
	Server       *Server          `json:"server"`
	Data         *Data            `json:"data"`
	App          *App             `json:"app"`
	Subscription *Subscription    `json:"subscription"`
	Pakasir      *Pakasir         `json:"pakasir"`
	Webhook      *Webhook         `json:"webhook"`
	Plans        map[string]*Plan `json:"plans"`
}

// Server 传输层配置
type Server struct {
	Http *Server_HTTP `json:"http"`
	Grpc *Server_GRPC `json:"grpc"`
}

// Server_HTTP HTTP 服务配置
type Server_HTTP struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Server_GRPC gRPC 服务配置
type Server_GRPC struct {
	Network string    `json:"network"`
	Addr    string    `json:"addr"`
	Timeout *Duration `json:"timeout"`
}

// Data 数据层配置
type Data struct {
	Database *Data_Database `json:"database"`
	Redis    *Data_Redis    `json:"redis"`
	Rocketmq *Data_RocketMQ `json:"rocketmq"`
}

// Data_Database 数据库配置，driver 支持 mysql / postgres / sqlite
type Data_Database struct {
	Driver      string `json:"driver"`
	Source      string `json:"source"`
	AutoMigrate bool   `json:"auto_migrate"`
}

// Data_Redis Redis 配置，addr 为空时不启用缓存和分布式锁
type Data_Redis struct {
	Addr         string    `json:"addr"`
	Password     string    `json:"password"`
	DB           int       `json:"db"`
	ReadTimeout  *Duration `json:"read_timeout"`
	WriteTimeout *Duration `json:"write_timeout"`
}

// Data_RocketMQ RocketMQ 配置
type Data_RocketMQ struct {
	Enabled     bool     `json:"enabled"`
	NameServers []string `json:"name_servers"`
	GroupName   string   `json:"group_name"`
	RetryTimes  int32    `json:"retry_times"`
	// EventTopic 订阅事件（升级、待审核、过期）发布的 topic
	EventTopic string `json:"event_topic"`
	// WebhookTopic 支付回调转发 topic，消费后交给同一个对账逻辑
	WebhookTopic string `json:"webhook_topic"`
}

// App 对外地址与内部接口鉴权
type App struct {
	FrontendURL    string `json:"frontend_url"`
	InternalAPIKey string `json:"internal_api_key"`
	AdminAPIKey    string `json:"admin_api_key"`
}

// Subscription 订阅、令牌、支付和待确认上传的时间配置
type Subscription struct {
	Timezone         string    `json:"timezone"`
	TokenTTL         *Duration `json:"token_ttl"`
	PaymentTTL       *Duration `json:"payment_ttl"`
	ExpiringSoonDays int       `json:"expiring_soon_days"`
	UploadTTL        *Duration `json:"upload_ttl"`
}

// Pakasir 支付网关配置
type Pakasir struct {
	BaseURL     string `json:"base_url"`
	ProjectSlug string `json:"project_slug"`
	QrisOnly    bool   `json:"qris_only"`
}

// Webhook 回调处理配置
type Webhook struct {
	// VerifyProject 为 true 时校验 payload.project 与 project_slug 一致
	VerifyProject bool `json:"verify_project"`
	// LegacyFallback 允许按 token / 金额解析没有支付记录的订单
	LegacyFallback bool `json:"legacy_fallback"`
}

// Plan 套餐配置，chat_limit / struk_limit 小于 0 表示不限
type Plan struct {
	Level            int  `json:"level"`
	ChatLimit        int  `json:"chat_limit"`
	StrukLimit       int  `json:"struk_limit"`
	SubscriptionDays int  `json:"subscription_days"`
	Unlimited        bool `json:"unlimited"`
	Purchasable      bool `json:"purchasable"`
}

// Duration 支持 "15m"、"1h" 这类字符串或秒数
type Duration struct {
	time.Duration
}

// AsDuration 与 durationpb 保持相同的调用方式
func (d *Duration) AsDuration() time.Duration {
	if d == nil {
		return 0
	}
	return d.Duration
}

// UnmarshalJSON 实现 json.Unmarshaler
func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value * float64(time.Second))
		return nil
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
		return nil
	default:
		return fmt.Errorf("invalid duration: %s", string(b))
	}
}

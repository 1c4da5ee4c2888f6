package biz

import (
	"strings"
	"time"

	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"
)

// ServiceConfig 订阅、结账、回调、上传确认相关配置
type ServiceConfig struct {
	TokenTTL         time.Duration
	PaymentTTL       time.Duration
	UploadTTL        time.Duration
	ExpiringSoonDays int
	FrontendURL      string
	ProjectSlug      string
	VerifyProject    bool
	LegacyFallback   bool
}

// NewServiceConfig 从配置创建 ServiceConfig
func NewServiceConfig(c *conf.Bootstrap) *ServiceConfig {
	config := &ServiceConfig{
		TokenTTL:         time.Hour,        // 默认值
		PaymentTTL:       15 * time.Minute, // 默认值
		UploadTTL:        constants.DefaultUploadTTL,
		ExpiringSoonDays: constants.DefaultExpiringSoonDays,
		FrontendURL:      constants.DefaultFrontendURL,
		ProjectSlug:      constants.DefaultPakasirSlug,
	}
	if c == nil {
		return config
	}
	if c.Subscription != nil {
		if d := c.Subscription.TokenTTL.AsDuration(); d > 0 {
			config.TokenTTL = d
		}
		if d := c.Subscription.PaymentTTL.AsDuration(); d > 0 {
			config.PaymentTTL = d
		}
		if d := c.Subscription.UploadTTL.AsDuration(); d > 0 {
			config.UploadTTL = d
		}
		if c.Subscription.ExpiringSoonDays > 0 {
			config.ExpiringSoonDays = c.Subscription.ExpiringSoonDays
		}
	}
	if c.App != nil && c.App.FrontendURL != "" {
		config.FrontendURL = strings.TrimRight(c.App.FrontendURL, "/")
	}
	if c.Pakasir != nil && c.Pakasir.ProjectSlug != "" {
		config.ProjectSlug = c.Pakasir.ProjectSlug
	}
	if c.Webhook != nil {
		config.VerifyProject = c.Webhook.VerifyProject
		config.LegacyFallback = c.Webhook.LegacyFallback
	}
	return config
}

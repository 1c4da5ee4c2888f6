package service

import (
	"context"
	"encoding/json"
	"time"

	"catatuang-service/internal/biz"
	bizErrors "catatuang-service/internal/errors"

	pkgUtils "github.com/gaoyong06/go-pkg/utils"
	"github.com/go-kratos/kratos/v2/log"
)

// completedAtLayouts 网关 completed_at 可能的格式
var completedAtLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02T15:04:05"}

// WebhookService 支付网关回调入口（HTTP 与 MQ 共用）
type WebhookService struct {
	uc    *biz.ReconcileUseCase
	clock biz.Clock
	log   *log.Helper
}

// NewWebhookService 创建 WebhookService
func NewWebhookService(uc *biz.ReconcileUseCase, clock biz.Clock, logger log.Logger) *WebhookService {
	return &WebhookService{
		uc:    uc,
		clock: clock,
		log:   log.NewHelper(logger),
	}
}

// Health 回调地址可达性检查
func (s *WebhookService) Health(_ context.Context, _ *EmptyRequest) (*WebhookHealthReply, error) {
	return &WebhookHealthReply{
		Status:    "ok",
		Service:   "catatuang-webhook",
		Timestamp: s.clock.Now().Format(time.RFC3339),
	}, nil
}

// Handle 处理一次回调；返回 error 时网关应重试
func (s *WebhookService) Handle(ctx context.Context, req *WebhookRequest) (*WebhookReply, error) {
	s.log.Infof("webhook received: order_id=%s, status=%s, amount=%d, client_ip=%s",
		req.OrderID, req.Status, req.Amount, pkgUtils.GetClientIP(ctx))
	if err := validateRequest(req); err != nil {
		s.log.Warnf("webhook rejected: order_id=%s, err=%v", req.OrderID, err)
		return nil, err
	}

	out, err := s.uc.HandleWebhook(ctx, s.toPayload(req))
	if err != nil {
		return nil, err
	}
	return &WebhookReply{
		Result:       out.Result,
		Message:      out.Message,
		OrderID:      out.OrderID,
		Status:       out.Status,
		PaymentID:    out.PaymentID,
		UserID:       out.UserID,
		PreviousPlan: out.PreviousPlan,
		Plan:         out.Plan,
	}, nil
}

// HandlePayload 处理 MQ 投递的原始回调 body
func (s *WebhookService) HandlePayload(ctx context.Context, body []byte) (*WebhookReply, error) {
	var req WebhookRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, bizErrors.WrapError(err, bizErrors.ErrCodeWebhookInvalidPayload)
	}
	return s.Handle(ctx, &req)
}

func (s *WebhookService) toPayload(req *WebhookRequest) *biz.WebhookPayload {
	raw := map[string]interface{}{
		"amount":         req.Amount,
		"order_id":       req.OrderID,
		"project":        req.Project,
		"status":         req.Status,
		"payment_method": req.PaymentMethod,
	}
	in := &biz.WebhookPayload{
		Amount:        req.Amount,
		OrderID:       req.OrderID,
		Project:       req.Project,
		Status:        req.Status,
		PaymentMethod: req.PaymentMethod,
		Raw:           raw,
	}
	if req.CompletedAt != "" {
		raw["completed_at"] = req.CompletedAt
		if t, ok := s.parseCompletedAt(req.CompletedAt); ok {
			in.CompletedAt = &t
		} else {
			s.log.Warnf("webhook completed_at unparseable, using receive time: order_id=%s, completed_at=%s", req.OrderID, req.CompletedAt)
		}
	}
	return in
}

func (s *WebhookService) parseCompletedAt(v string) (time.Time, bool) {
	loc := s.clock.Now().Location()
	for _, layout := range completedAtLayouts {
		if t, err := time.ParseInLocation(layout, v, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

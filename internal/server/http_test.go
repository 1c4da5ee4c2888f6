package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/conf"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/service"

	"github.com/apache/rocketmq-client-go/v2/consumer"
	"github.com/apache/rocketmq-client-go/v2/primitive"
	"github.com/go-kratos/kratos/v2/log"
)

type testEnvelope struct {
	Success bool              `json:"success"`
	Data    json.RawMessage   `json:"data"`
	Code    string            `json:"code"`
	Reason  string            `json:"reason"`
	Errors  map[string]string `json:"errors"`
}

// newTestServer 只覆盖在进入业务层之前就返回的路径，用例层可以为空
func newTestServer(t *testing.T, internalKey, adminKey string) *httptest.Server {
	t.Helper()
	logger := log.NewStdLogger(io.Discard)
	clock := biz.NewFixedClock(time.Date(2026, 3, 5, 10, 0, 0, 0, time.FixedZone("WIB", 7*3600)))
	srv := NewHTTPServer(
		&conf.Bootstrap{App: &conf.App{InternalAPIKey: internalKey, AdminAPIKey: adminKey}},
		service.NewUserService(nil, nil, clock, logger),
		service.NewQuotaService(nil, nil, nil, clock, logger),
		service.NewBudgetService(nil, logger),
		service.NewUpgradeService(nil, nil, nil, logger),
		service.NewSubscriptionService(nil, clock, logger),
		service.NewWebhookService(nil, clock, logger),
		service.NewAdminService(nil, nil, nil, nil, nil, clock, logger),
		service.NewUploadService(nil, clock, logger),
		service.NewSummaryService(nil, clock, logger),
		logger,
	)
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, ts *httptest.Server, method, path, body string, header map[string]string) (int, *testEnvelope) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := nethttp.NewRequest(method, ts.URL+path, r)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	var env testEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		t.Fatalf("decode %s %s: %v", method, path, err)
	}
	return resp.StatusCode, &env
}

func TestAPIKeyFilter(t *testing.T) {
	ts := newTestServer(t, "internal-secret", "")

	status, env := do(t, ts, "GET", "/internal/users/limits?phone_number=6281234567890", "", nil)
	if status != nethttp.StatusUnauthorized || env.Success || env.Reason != "UNAUTHORIZED" || env.Code != "200003" {
		t.Fatalf("missing key = %d %+v", status, env)
	}
	status, _ = do(t, ts, "GET", "/internal/users/limits?phone_number=6281234567890", "", map[string]string{headerAPIKey: "wrong"})
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("wrong key status = %d", status)
	}

	// key 正确时请求进入 handler，由参数校验拒绝
	status, env = do(t, ts, "GET", "/internal/users/limits", "", map[string]string{headerAPIKey: "internal-secret"})
	if status != nethttp.StatusUnprocessableEntity || env.Reason != "VALIDATION_FAILED" {
		t.Fatalf("valid key = %d %+v", status, env)
	}
	if _, ok := env.Errors["phone_number"]; !ok {
		t.Fatalf("errors = %v, want phone_number", env.Errors)
	}
	if _, ok := env.Errors["code"]; ok {
		t.Fatalf("errors should not repeat the code")
	}

	// 未配置 admin key 时拒绝所有管理请求
	status, _ = do(t, ts, "GET", "/admin/payments/review", "", map[string]string{headerAdminKey: ""})
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("admin without configured key status = %d", status)
	}
	// internal key 不能用于管理接口
	status, _ = do(t, ts, "GET", "/admin/payments/review", "", map[string]string{headerAPIKey: "internal-secret"})
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("admin with internal key status = %d", status)
	}
}

func TestWebhookEndpoint(t *testing.T) {
	ts := newTestServer(t, "k", "a")

	status, env := do(t, ts, "GET", "/webhook/pakasir", "", nil)
	if status != nethttp.StatusOK || !env.Success {
		t.Fatalf("health = %d %+v", status, env)
	}
	var health service.WebhookHealthReply
	if err := json.Unmarshal(env.Data, &health); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if health.Status != "ok" || health.Service != "catatuang-webhook" {
		t.Fatalf("health = %+v", health)
	}

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{"zero amount", `{"amount":0,"order_id":"UPGRADE_1","project":"catatuang","status":"completed","payment_method":"qris"}`, "amount"},
		{"unknown status", `{"amount":15000,"order_id":"UPGRADE_1","project":"catatuang","status":"refunded","payment_method":"qris"}`, "status"},
		{"missing order", `{"amount":15000,"project":"catatuang","status":"completed","payment_method":"qris"}`, "order_id"},
	}
	for _, tt := range tests {
		status, env := do(t, ts, "POST", "/webhook/pakasir", tt.body, nil)
		if status != nethttp.StatusUnprocessableEntity || env.Success {
			t.Fatalf("%s: status = %d", tt.name, status)
		}
		if _, ok := env.Errors[tt.field]; !ok {
			t.Fatalf("%s: errors = %v, want %s", tt.name, env.Errors, tt.field)
		}
	}
}

func TestInternalRouteValidation(t *testing.T) {
	ts := newTestServer(t, "k", "a")
	key := map[string]string{headerAPIKey: "k"}

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		field  string
	}{
		{"upload without image", "POST", "/internal/uploads/create", `{"phone_number":"6281234567890"}`, "image_url"},
		{"upload bad url", "POST", "/internal/uploads/create", `{"phone_number":"6281234567890","image_url":"not a url"}`, "image_url"},
		{"confirm bad type", "POST", "/internal/uploads/confirm", `{"phone_number":"6281234567890","transaction_type":"transfer"}`, "transaction_type"},
		{"confirm negative amount", "POST", "/internal/uploads/confirm", `{"phone_number":"6281234567890","transaction_type":"expense","amount":-5}`, "amount"},
		{"pending without phone", "GET", "/internal/uploads/pending", "", "phone_number"},
		{"summary without phone", "GET", "/internal/summary/today", "", "phone_number"},
		{"statistics month 13", "GET", "/internal/summary/statistics-by-category?phone_number=6281234567890&month=13", "", "month"},
		{"by-category without category", "GET", "/internal/summary/by-category?phone_number=6281234567890", "", "category"},
		{"can-use unknown counter", "GET", "/internal/users/can-use?phone_number=6281234567890&counter=sms", "", "counter"},
	}
	for _, tt := range tests {
		status, env := do(t, ts, tt.method, tt.path, tt.body, key)
		if status != nethttp.StatusUnprocessableEntity || env.Reason != "VALIDATION_FAILED" {
			t.Fatalf("%s: status = %d %+v", tt.name, status, env)
		}
		if _, ok := env.Errors[tt.field]; !ok {
			t.Fatalf("%s: errors = %v, want %s", tt.name, env.Errors, tt.field)
		}
	}

	status, _ := do(t, ts, "GET", "/internal/reminders/today-empty", "", nil)
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("today-empty without key = %d", status)
	}
	status, _ = do(t, ts, "GET", "/admin/payments/UPGRADE_20260305100000_ABCDEFGH", "", key)
	if status != nethttp.StatusUnauthorized {
		t.Fatalf("admin payment with internal key = %d", status)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, "k", "a")
	resp, err := ts.Client().Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("/metrics status = %d", resp.StatusCode)
	}
}

func TestMQRetryDecision(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{bizErrors.NewBizError(bizErrors.ErrCodeDatabase), true},
		{bizErrors.NewBizError(bizErrors.ErrCodeLockFailed), true},
		{errors.New("connection reset"), true},
		{bizErrors.NewBizError(bizErrors.ErrCodeWebhookInvalidPayload), false},
		{bizErrors.NewBizError(bizErrors.ErrCodeWebhookProjectMismatch), false},
	}
	for _, tt := range tests {
		if got := retryable(tt.err); got != tt.want {
			t.Fatalf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}

	logger := log.NewStdLogger(io.Discard)
	s := &MQConsumerServer{
		webhook: service.NewWebhookService(nil, biz.NewFixedClock(time.Now()), logger),
		log:     log.NewHelper(logger),
	}
	// 无法解析的消息直接确认，不再重投
	res, err := s.handler(context.Background(), &primitive.MessageExt{Message: primitive.Message{Body: []byte("{not json")}, MsgId: "m1"})
	if err != nil || res != consumer.ConsumeSuccess {
		t.Fatalf("handler = %v, %v; want ConsumeSuccess", res, err)
	}
	// 未启用时启动和停止都是空操作
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}
}

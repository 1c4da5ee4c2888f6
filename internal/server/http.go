package server

import (
	"context"
	"crypto/subtle"
	nethttp "net/http"
	"strings"

	"catatuang-service/internal/conf"
	bizErrors "catatuang-service/internal/errors"
	"catatuang-service/internal/service"

	"github.com/go-kratos/kratos/v2/encoding"
	"github.com/go-kratos/kratos/v2/encoding/json"
	kerrors "github.com/go-kratos/kratos/v2/errors"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/middleware/logging"
	"github.com/go-kratos/kratos/v2/middleware/recovery"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	headerAPIKey   = "X-API-KEY"
	headerAdminKey = "X-ADMIN-KEY"
)

// envelope 统一响应格式
type envelope struct {
	Success bool              `json:"success"`
	Data    interface{}       `json:"data,omitempty"`
	Code    string            `json:"code,omitempty"`
	Reason  string            `json:"reason,omitempty"`
	Message string            `json:"message,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// NewHTTPServer 创建 HTTP 服务器
func NewHTTPServer(
	c *conf.Bootstrap,
	user *service.UserService,
	quota *service.QuotaService,
	budget *service.BudgetService,
	upgrade *service.UpgradeService,
	subscription *service.SubscriptionService,
	webhook *service.WebhookService,
	admin *service.AdminService,
	upload *service.UploadService,
	summary *service.SummaryService,
	logger log.Logger,
) *http.Server {
	var internalKey, adminKey string
	if c.App != nil {
		internalKey = c.App.InternalAPIKey
		adminKey = c.App.AdminAPIKey
	}
	var opts = []http.ServerOption{
		http.Middleware(
			recovery.Recovery(),
			logging.Server(logger),
		),
		http.Filter(
			apiKeyFilter("/internal/", headerAPIKey, internalKey),
			apiKeyFilter("/admin/", headerAdminKey, adminKey),
		),
		http.ResponseEncoder(encodeResponse),
		http.ErrorEncoder(encodeError),
	}
	if c.Server != nil && c.Server.Http != nil {
		if c.Server.Http.Network != "" {
			opts = append(opts, http.Network(c.Server.Http.Network))
		}
		if c.Server.Http.Addr != "" {
			opts = append(opts, http.Address(c.Server.Http.Addr))
		}
		if c.Server.Http.Timeout != nil {
			opts = append(opts, http.Timeout(c.Server.Http.Timeout.AsDuration()))
		}
	}
	srv := http.NewServer(opts...)
	srv.Handle("/metrics", promhttp.Handler())

	r := srv.Route("/")

	// 机器人（n8n）内部接口
	r.POST("/internal/users/check-or-create", route("/internal.User/CheckOrCreate", user.CheckOrCreate, bindBody))
	r.POST("/internal/users/reminder", route("/internal.User/UpdateReminder", user.UpdateReminder, bindBody))
	r.POST("/internal/users/style", route("/internal.User/UpdateStyle", user.UpdateStyle, bindBody))
	r.POST("/internal/users/increment-chat", route("/internal.Quota/IncrementChat", quota.IncrementChat, bindBody))
	r.GET("/internal/users/limits", route("/internal.Quota/GetLimits", quota.GetLimits, bindQuery))
	r.GET("/internal/users/can-use", route("/internal.Quota/CanUse", quota.CanUse, bindQuery))
	r.POST("/internal/users/reset-counters", route("/internal.Subscription/ResetCounters", subscription.ResetCounters))
	r.POST("/internal/uploads/consume", route("/internal.Quota/ConsumeUpload", quota.ConsumeUpload, bindBody))
	r.POST("/internal/uploads/create", route("/internal.Upload/Create", upload.Create, bindBody))
	r.POST("/internal/uploads/confirm", route("/internal.Upload/Confirm", upload.Confirm, bindBody))
	r.GET("/internal/uploads/pending", route("/internal.Upload/Pending", upload.Pending, bindQuery))
	r.GET("/internal/reminders/today-empty", route("/internal.User/TodayEmpty", user.TodayEmpty))
	r.GET("/internal/summary/today", route("/internal.Summary/Today", summary.Today, bindQuery))
	r.GET("/internal/summary/today-detail", route("/internal.Summary/TodayDetail", summary.TodayDetail, bindQuery))
	r.GET("/internal/summary/month-balance", route("/internal.Summary/MonthBalance", summary.MonthBalance, bindQuery))
	r.GET("/internal/summary/statistics-by-category", route("/internal.Summary/StatisticsByCategory", summary.StatisticsByCategory, bindQuery))
	r.GET("/internal/summary/by-category", route("/internal.Summary/ByCategory", summary.ByCategory, bindQuery))
	r.POST("/internal/transactions/batch", route("/internal.Quota/BatchTransactions", quota.BatchTransactions, bindBody))
	r.POST("/internal/budget/set", route("/internal.Budget/SetBudget", budget.SetBudget, bindBody))
	r.GET("/internal/budget/get", route("/internal.Budget/GetBudget", budget.GetBudget, bindQuery))
	r.GET("/internal/upgrade/generate-link", route("/internal.Upgrade/GenerateLink", upgrade.GenerateLink, bindQuery))
	r.POST("/internal/upgrade/generate-link", route("/internal.Upgrade/GenerateLink", upgrade.GenerateLink, bindBody))
	r.GET("/internal/subscriptions/expiring-soon", route("/internal.Subscription/ExpiringSoon", subscription.ExpiringSoon, bindQuery))
	r.GET("/internal/subscriptions/expired", route("/internal.Subscription/Expired", subscription.Expired))
	r.POST("/internal/subscriptions/mark-expired", route("/internal.Subscription/MarkExpired", subscription.MarkExpired))

	// 升级页面公开接口
	r.GET("/api/pricing", route("/api.Upgrade/ListPricing", upgrade.ListPricing))
	r.GET("/api/upgrade/validate/{token}", route("/api.Upgrade/ValidateToken", upgrade.ValidateToken, bindVars))
	r.GET("/api/upgrade/payment-status", route("/api.Upgrade/PaymentStatus", upgrade.PaymentStatus, bindQuery))
	r.GET("/api/upgrade/success", route("/api.Upgrade/UpgradeSuccess", upgrade.UpgradeSuccess, bindQuery))
	r.POST("/api/upgrade/checkout", route("/api.Upgrade/Checkout", upgrade.Checkout, bindBody))
	r.GET("/api/upgrade/{token}", route("/api.Upgrade/UpgradePlans", upgrade.UpgradePlans, bindVars))

	// 支付网关回调
	r.GET("/webhook/pakasir", route("/webhook.Pakasir/Health", webhook.Health))
	r.POST("/webhook/pakasir", route("/webhook.Pakasir/Handle", webhook.Handle, bindBody))

	// 管理接口
	r.PUT("/admin/users/{id}/plan", route("/admin.Admin/ChangePlan", admin.ChangePlan, bindBody, bindVars))
	r.DELETE("/admin/users/{id}", route("/admin.Admin/DeleteUser", admin.DeleteUser, bindVars))
	r.GET("/admin/payments/review", route("/admin.Admin/ReviewPayments", admin.ReviewPayments, bindQuery))
	r.GET("/admin/payments/{order_id}", route("/admin.Admin/GetPayment", admin.GetPayment, bindVars))
	r.PUT("/admin/pricings/{plan}", route("/admin.Admin/UpsertPricing", admin.UpsertPricing, bindBody, bindVars))

	return srv
}

type binder func(ctx http.Context, v interface{}) error

func bindBody(ctx http.Context, v interface{}) error  { return ctx.Bind(v) }
func bindQuery(ctx http.Context, v interface{}) error { return ctx.BindQuery(v) }
func bindVars(ctx http.Context, v interface{}) error  { return ctx.BindVars(v) }

// route 按生成代码的方式包装 handler：绑定参数、设置 operation、走中间件链
func route[T, R any](operation string, fn func(context.Context, *T) (*R, error), binders ...binder) http.HandlerFunc {
	return func(ctx http.Context) error {
		var in T
		for _, bind := range binders {
			if err := bind(ctx, &in); err != nil {
				return err
			}
		}
		http.SetOperation(ctx, operation)
		h := ctx.Middleware(func(ctx context.Context, req interface{}) (interface{}, error) {
			return fn(ctx, req.(*T))
		})
		out, err := h(ctx, &in)
		if err != nil {
			return err
		}
		return ctx.Result(200, out)
	}
}

// apiKeyFilter 校验 prefix 下所有请求的 API key；未配置 key 时拒绝全部请求
func apiKeyFilter(prefix, header, key string) http.FilterFunc {
	return func(next nethttp.Handler) nethttp.Handler {
		return nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			if !strings.HasPrefix(r.URL.Path, prefix) {
				next.ServeHTTP(w, r)
				return
			}
			got := r.Header.Get(header)
			if key == "" || subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				encodeError(w, r, bizErrors.NewBizError(bizErrors.ErrCodeUnauthorized))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func encodeResponse(w nethttp.ResponseWriter, _ *nethttp.Request, v interface{}) error {
	if v == nil {
		return nil
	}
	if rd, ok := v.(http.Redirector); ok {
		url, code := rd.Redirect()
		w.Header().Set("Location", url)
		w.WriteHeader(code)
		return nil
	}
	data, err := encoding.GetCodec(json.Name).Marshal(&envelope{Success: true, Data: v})
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	_, err = w.Write(data)
	return err
}

func encodeError(w nethttp.ResponseWriter, _ *nethttp.Request, err error) {
	se := kerrors.FromError(err)
	body := &envelope{
		Success: false,
		Code:    se.Metadata["code"],
		Reason:  se.Reason,
		Message: se.Message,
	}
	if len(se.Metadata) > 0 {
		details := make(map[string]string, len(se.Metadata))
		for k, v := range se.Metadata {
			if k != "code" {
				details[k] = v
			}
		}
		if len(details) > 0 {
			body.Errors = details
		}
	}
	data, mErr := encoding.GetCodec(json.Name).Marshal(body)
	if mErr != nil {
		w.WriteHeader(nethttp.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(int(se.Code))
	_, _ = w.Write(data)
}

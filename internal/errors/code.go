package errors

import (
	"net/http"
	"strconv"

	kerrors "github.com/go-kratos/kratos/v2/errors"
)

// CatatUang Service 错误码定义
// 错误码格式：SSMMEE (6位数字)
//   SS: 服务标识，CatatUang 固定为 20
//   MM: 模块标识，按业务划分
//   EE: 模块内错误序号
//
// 模块划分：
//   00: 通用模块
//   01: 用户模块
//   02: 配额模块
//   03: 升级令牌模块
//   04: 支付模块
//   05: 回调对账模块
//   06: 预算模块
//   07: 价格模块
//   08: 小票上传模块

// 通用错误码 (200000-200099)
const (
	// ErrCodeValidation 参数校验失败
	ErrCodeValidation = 200001
	// ErrCodeDatabase 数据库错误
	ErrCodeDatabase = 200002
	// ErrCodeUnauthorized API key 无效
	ErrCodeUnauthorized = 200003
	// ErrCodeLockFailed 获取分布式锁失败
	ErrCodeLockFailed = 200004
)

// 用户模块错误码 (200100-200199)
const (
	// ErrCodeUserNotFound 用户不存在
	ErrCodeUserNotFound = 200101
	// ErrCodeInvalidPhone 手机号无效
	ErrCodeInvalidPhone = 200102
	// ErrCodeInvalidStyle 回复风格无效
	ErrCodeInvalidStyle = 200103
	// ErrCodeUserCreateFailed 创建用户失败
	ErrCodeUserCreateFailed = 200104
	// ErrCodeSubscriptionExpired 订阅已过期，功能不可用
	ErrCodeSubscriptionExpired = 200105
)

// 配额模块错误码 (200200-200299)
const (
	// ErrCodeQuotaExceeded 本月配额已用尽
	ErrCodeQuotaExceeded = 200201
	// ErrCodeUnknownCounter 未知的计数器
	ErrCodeUnknownCounter = 200202
)

// 升级令牌模块错误码 (200300-200399)
const (
	// ErrCodeTokenNotFound 令牌不存在、已过期或已使用
	ErrCodeTokenNotFound = 200301
	// ErrCodeTokenCreateFailed 令牌生成失败
	ErrCodeTokenCreateFailed = 200302
)

// 支付模块错误码 (200400-200499)
const (
	// ErrCodePlanUnavailable 套餐不可购买
	ErrCodePlanUnavailable = 200401
	// ErrCodePlanNotHigher 目标套餐不高于当前套餐
	ErrCodePlanNotHigher = 200402
	// ErrCodePaymentCreateFailed 创建支付记录失败
	ErrCodePaymentCreateFailed = 200403
	// ErrCodeOrderIDCollision 订单号重复
	ErrCodeOrderIDCollision = 200404
	// ErrCodePaymentNotFound 支付记录不存在
	ErrCodePaymentNotFound = 200405
)

// 回调对账模块错误码 (200500-200599)
const (
	// ErrCodeWebhookProjectMismatch 回调 project 不匹配
	ErrCodeWebhookProjectMismatch = 200501
	// ErrCodeWebhookInvalidPayload 回调 payload 无效
	ErrCodeWebhookInvalidPayload = 200502
	// ErrCodeReconcileFailed 对账事务失败
	ErrCodeReconcileFailed = 200503
	// ErrCodeUnknownPlan 未配置的套餐
	ErrCodeUnknownPlan = 200504
)

// 预算模块错误码 (200600-200699)
const (
	// ErrCodeInvalidBudgetPeriod 预算月份/年份无效
	ErrCodeInvalidBudgetPeriod = 200601
	// ErrCodeBudgetNotFound 预算不存在
	ErrCodeBudgetNotFound = 200602
)

// 价格模块错误码 (200700-200799)
const (
	// ErrCodePricingNotFound 价格不存在
	ErrCodePricingNotFound = 200701
)

// 小票上传模块错误码 (200800-200899)
const (
	// ErrCodePendingUploadNotFound 没有等待确认的上传
	ErrCodePendingUploadNotFound = 200801
	// ErrCodePendingUploadExpired 待确认上传已超时
	ErrCodePendingUploadExpired = 200802
	// ErrCodePendingUploadConflict 上传已被确认或取消
	ErrCodePendingUploadConflict = 200803
)

type definition struct {
	status  int
	reason  string
	message string
}

var definitions = map[int]definition{
	ErrCodeValidation:   {http.StatusUnprocessableEntity, "VALIDATION_FAILED", "validation failed"},
	ErrCodeDatabase:     {http.StatusInternalServerError, "DATABASE_ERROR", "database error"},
	ErrCodeUnauthorized: {http.StatusUnauthorized, "UNAUTHORIZED", "invalid api key"},
	ErrCodeLockFailed:   {http.StatusServiceUnavailable, "LOCK_FAILED", "resource is busy, retry later"},

	ErrCodeUserNotFound:        {http.StatusNotFound, "USER_NOT_FOUND", "user not found"},
	ErrCodeInvalidPhone:        {http.StatusUnprocessableEntity, "INVALID_PHONE", "invalid phone number"},
	ErrCodeInvalidStyle:        {http.StatusUnprocessableEntity, "INVALID_STYLE", "allowed styles: santai, netral/biasa, formal, gaul"},
	ErrCodeUserCreateFailed:    {http.StatusInternalServerError, "USER_CREATE_FAILED", "failed to create user"},
	ErrCodeSubscriptionExpired: {http.StatusForbidden, "SUBSCRIPTION_EXPIRED", "subscription expired"},

	ErrCodeQuotaExceeded:  {http.StatusTooManyRequests, "QUOTA_EXCEEDED", "monthly limit reached"},
	ErrCodeUnknownCounter: {http.StatusBadRequest, "UNKNOWN_COUNTER", "unknown quota counter"},

	ErrCodeTokenNotFound:     {http.StatusNotFound, "TOKEN_INVALID", "token is invalid or expired"},
	ErrCodeTokenCreateFailed: {http.StatusInternalServerError, "TOKEN_CREATE_FAILED", "failed to create upgrade token"},

	ErrCodePlanUnavailable:     {http.StatusBadRequest, "PLAN_UNAVAILABLE", "plan is not available for upgrade"},
	ErrCodePlanNotHigher:       {http.StatusBadRequest, "PLAN_NOT_HIGHER", "current plan is the same or higher"},
	ErrCodePaymentCreateFailed: {http.StatusInternalServerError, "PAYMENT_CREATE_FAILED", "failed to create checkout"},
	ErrCodeOrderIDCollision:    {http.StatusConflict, "ORDER_ID_COLLISION", "order id collision"},
	ErrCodePaymentNotFound:     {http.StatusNotFound, "PAYMENT_NOT_FOUND", "payment not found"},

	ErrCodeWebhookProjectMismatch: {http.StatusBadRequest, "PROJECT_MISMATCH", "invalid project"},
	ErrCodeWebhookInvalidPayload:  {http.StatusUnprocessableEntity, "INVALID_PAYLOAD", "invalid webhook payload"},
	ErrCodeReconcileFailed:        {http.StatusInternalServerError, "RECONCILE_FAILED", "failed to process payment"},
	ErrCodeUnknownPlan:            {http.StatusBadRequest, "UNKNOWN_PLAN", "unknown plan"},

	ErrCodeInvalidBudgetPeriod: {http.StatusUnprocessableEntity, "INVALID_BUDGET_PERIOD", "invalid budget month or year"},
	ErrCodeBudgetNotFound:      {http.StatusNotFound, "BUDGET_NOT_FOUND", "budget not found"},

	ErrCodePricingNotFound: {http.StatusNotFound, "PRICING_NOT_FOUND", "pricing not found"},

	ErrCodePendingUploadNotFound: {http.StatusNotFound, "PENDING_UPLOAD_NOT_FOUND", "no pending upload"},
	ErrCodePendingUploadExpired:  {http.StatusGone, "PENDING_UPLOAD_EXPIRED", "pending upload expired, upload the image again"},
	ErrCodePendingUploadConflict: {http.StatusConflict, "PENDING_UPLOAD_CONFLICT", "pending upload is no longer pending"},
}

// NewBizError 根据错误码构造 kratos 错误
func NewBizError(code int) *kerrors.Error {
	d, ok := definitions[code]
	if !ok {
		d = definition{http.StatusInternalServerError, "UNKNOWN", "unknown error"}
	}
	return kerrors.New(d.status, d.reason, d.message).
		WithMetadata(map[string]string{"code": strconv.Itoa(code)})
}

// NewBizErrorWithMetadata 附带结构化详情（字段错误、配额用量等）
func NewBizErrorWithMetadata(code int, md map[string]string) *kerrors.Error {
	e := NewBizError(code)
	merged := make(map[string]string, len(md)+1)
	for k, v := range e.Metadata {
		merged[k] = v
	}
	for k, v := range md {
		merged[k] = v
	}
	return e.WithMetadata(merged)
}

// WrapError 包装底层错误
func WrapError(err error, code int) *kerrors.Error {
	return NewBizError(code).WithCause(err)
}

// Is 判断 err 是否为指定错误码
func Is(err error, code int) bool {
	e := kerrors.FromError(err)
	if e == nil {
		return false
	}
	return e.Metadata["code"] == strconv.Itoa(code)
}

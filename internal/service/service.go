package service

import (
	"errors"
	"reflect"
	"strconv"
	"strings"
	"time"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/constants"
	bizErrors "catatuang-service/internal/errors"

	"github.com/go-playground/validator/v10"
	"github.com/google/wire"
)

// ProviderSet is service providers.
var ProviderSet = wire.NewSet(
	NewUserService,
	NewQuotaService,
	NewBudgetService,
	NewUpgradeService,
	NewSubscriptionService,
	NewWebhookService,
	NewAdminService,
	NewUploadService,
	NewSummaryService,
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	// 错误里的字段名使用 json tag
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validateRequest 校验请求，字段错误放进 metadata
func validateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return bizErrors.WrapError(err, bizErrors.ErrCodeValidation)
	}
	md := make(map[string]string, len(ve))
	for _, fe := range ve {
		md[fieldPath(fe)] = fieldMessage(fe)
	}
	return bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, md)
}

// fieldPath 去掉顶层结构体名，例如 transactions[0].amount
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "len":
		return "must have length " + fe.Param()
	case "oneof":
		return "must be one of: " + fe.Param()
	default:
		return "failed on " + fe.Tag()
	}
}

// normalizePhone 校验请求后规范化手机号
func normalizePhone(raw string) (string, error) {
	return biz.NormalizePhone(raw)
}

// formatDate 日期字段按服务时区输出 YYYY-MM-DD
func formatDate(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(constants.TimeFormatDate)
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func invalidTanggal(i int) error {
	return bizErrors.NewBizErrorWithMetadata(bizErrors.ErrCodeValidation, map[string]string{
		"transactions[" + strconv.Itoa(i) + "].tanggal": "must be a date in YYYY-MM-DD format",
	})
}

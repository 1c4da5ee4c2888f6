package data

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"catatuang-service/internal/biz"
	"catatuang-service/internal/conf"
	"catatuang-service/internal/constants"

	"github.com/go-kratos/kratos/v2/log"
)

// pakasirGateway Pakasir 托管支付页。
// Pakasir 不需要预先下单，支付链接由项目 slug、金额和订单号拼出，完成后通过回调通知。
type pakasirGateway struct {
	baseURL  string
	slug     string
	qrisOnly bool
	log      *log.Helper
}

// NewPakasirGateway 创建支付网关（返回 biz.PaymentGateway 接口）
func NewPakasirGateway(c *conf.Bootstrap, logger log.Logger) biz.PaymentGateway {
	g := &pakasirGateway{
		baseURL:  constants.DefaultPakasirBaseURL,
		slug:     constants.DefaultPakasirSlug,
		qrisOnly: true,
		log:      log.NewHelper(logger),
	}
	if c != nil && c.Pakasir != nil {
		if c.Pakasir.BaseURL != "" {
			g.baseURL = strings.TrimRight(c.Pakasir.BaseURL, "/")
		}
		if c.Pakasir.ProjectSlug != "" {
			g.slug = c.Pakasir.ProjectSlug
		}
		g.qrisOnly = c.Pakasir.QrisOnly
	}
	return g
}

// CreatePayment 生成支付链接
func (g *pakasirGateway) CreatePayment(ctx context.Context, req *biz.CreatePaymentRequest) (*biz.CreatePaymentReply, error) {
	if req.OrderID == "" || req.Amount <= 0 {
		return nil, fmt.Errorf("invalid payment request: order_id=%q, amount=%d", req.OrderID, req.Amount)
	}
	payURL := fmt.Sprintf("%s/pay/%s/%d?order_id=%s", g.baseURL, url.PathEscape(g.slug), req.Amount, url.QueryEscape(req.OrderID))
	if g.qrisOnly {
		payURL += "&qris_only=1"
	}
	g.log.WithContext(ctx).Debugf("pakasir pay url built: order_id=%s, plan=%s, amount=%d", req.OrderID, req.Plan, req.Amount)
	return &biz.CreatePaymentReply{PayURL: payURL}, nil
}

package biz

import "context"

// PaymentGateway 外部支付网关客户端接口
type PaymentGateway interface {
	CreatePayment(ctx context.Context, req *CreatePaymentRequest) (*CreatePaymentReply, error)
}

// CreatePaymentRequest 创建支付请求
type CreatePaymentRequest struct {
	OrderID string // 本服务生成的订单号，网关回调时原样带回
	UserID  string
	Plan    string
	Amount  int64 // 单位：卢比
}

// CreatePaymentReply 创建支付响应
type CreatePaymentReply struct {
	PayURL string
}

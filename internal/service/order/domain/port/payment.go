package port

import (
	"context"

	"github.com/shopspring/decimal"
)

// PaymentStatus 支付结果
type PaymentStatus string

const (
	PaymentApproved PaymentStatus = "APPROVED"
	PaymentDeclined PaymentStatus = "DECLINED"
	PaymentPending  PaymentStatus = "PENDING"
	PaymentUnknown  PaymentStatus = "UNKNOWN"
)

// Decisive 只有 APPROVED/DECLINED 是确定结果
func (s PaymentStatus) Decisive() bool {
	return s == PaymentApproved || s == PaymentDeclined
}

// PaymentResult 支付网关返回的结果
type PaymentResult struct {
	Status    PaymentStatus
	PaymentID string
	Reason    string
}

// PaymentGateway 是支付服务的出站端口。
// Charge 以 orderID 作为幂等键；Status 按 orderID 查询已有扣款。
// 传输失败/超时以 error 返回，调用方必须先查询再决定是否重试。
type PaymentGateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal) (PaymentResult, error)
	Status(ctx context.Context, orderID string) (PaymentResult, error)
}

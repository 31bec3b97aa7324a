package adapter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"orderhub/internal/pkg/httpclient"
	"orderhub/internal/service/order/domain/port"
)

const paymentsPath = "/api/v1/payments"

type chargeRequest struct {
	OrderID string      `json:"orderId"`
	Amount  json.Number `json:"amount"`
}

type paymentResponse struct {
	PaymentID string `json:"paymentId"`
	Status    string `json:"status"`
	Reason    string `json:"reason"`
}

// PaymentHTTPAdapter 实现了 port.PaymentGateway 接口。
// orderID 同时作为 Idempotency-Key 发送，网关据此保证同一订单只扣款一次。
type PaymentHTTPAdapter struct {
	client      *httpclient.Client
	resolver    httpclient.Resolver
	serviceName string
}

func NewPaymentHTTPAdapter(client *httpclient.Client, resolver httpclient.Resolver, serviceName string) *PaymentHTTPAdapter {
	return &PaymentHTTPAdapter{client: client, resolver: resolver, serviceName: serviceName}
}

// Charge 402 视为拒付；5xx 和传输失败返回 error
func (a *PaymentHTTPAdapter) Charge(ctx context.Context, orderID string, amount decimal.Decimal) (port.PaymentResult, error) {
	base, err := a.resolver.Resolve(ctx, a.serviceName)
	if err != nil {
		return port.PaymentResult{}, err
	}

	var resp paymentResponse
	headers := map[string]string{"Idempotency-Key": orderID}
	err = a.client.DoJSON(ctx, http.MethodPost, base+paymentsPath, headers, chargeRequest{OrderID: orderID, Amount: json.Number(amount.StringFixed(2))}, &resp)
	if err != nil {
		if se, ok := httpclient.AsStatusError(err); ok && se.StatusCode == http.StatusPaymentRequired {
			return port.PaymentResult{Status: port.PaymentDeclined, Reason: reasonFromBody(se.Body, "payment declined")}, nil
		}
		return port.PaymentResult{}, errors.Wrapf(err, "charge order %s", orderID)
	}
	return resp.toResult(), nil
}

// Status 404 表示网关没有该订单的扣款记录
func (a *PaymentHTTPAdapter) Status(ctx context.Context, orderID string) (port.PaymentResult, error) {
	base, err := a.resolver.Resolve(ctx, a.serviceName)
	if err != nil {
		return port.PaymentResult{}, err
	}

	var resp paymentResponse
	err = a.client.DoJSON(ctx, http.MethodGet, base+paymentsPath+"/"+url.PathEscape(orderID), nil, nil, &resp)
	if err != nil {
		if se, ok := httpclient.AsStatusError(err); ok && se.StatusCode == http.StatusNotFound {
			return port.PaymentResult{Status: port.PaymentUnknown}, nil
		}
		return port.PaymentResult{}, errors.Wrapf(err, "query payment of order %s", orderID)
	}
	return resp.toResult(), nil
}

func (r paymentResponse) toResult() port.PaymentResult {
	status := port.PaymentStatus(strings.ToUpper(r.Status))
	switch status {
	case port.PaymentApproved, port.PaymentDeclined, port.PaymentPending:
	default:
		status = port.PaymentUnknown
	}
	return port.PaymentResult{Status: status, PaymentID: r.PaymentID, Reason: r.Reason}
}

// reasonFromBody 从错误响应体里取 message/reason 字段
func reasonFromBody(body []byte, fallback string) string {
	var payload struct {
		Message string `json:"message"`
		Reason  string `json:"reason"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Reason != "" {
			return payload.Reason
		}
	}
	return fallback
}

package adapter

import (
	"context"
	"net/http"

	"github.com/pkg/errors"

	"orderhub/internal/pkg/httpclient"
	"orderhub/internal/service/order/domain/port"
)

const inventoryValidatePath = "/api/v1/products/validate"

type validateRequest struct {
	Items []port.ValidationItem `json:"items"`
}

type validateResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// InventoryHTTPAdapter 实现了 port.InventoryValidator 接口。
type InventoryHTTPAdapter struct {
	client      *httpclient.Client
	resolver    httpclient.Resolver
	serviceName string
}

// NewInventoryHTTPAdapter 创建一个新的库存服务适配器。
func NewInventoryHTTPAdapter(client *httpclient.Client, resolver httpclient.Resolver, serviceName string) *InventoryHTTPAdapter {
	return &InventoryHTTPAdapter{client: client, resolver: resolver, serviceName: serviceName}
}

// Validate 4xx 视为业务上的校验不通过；5xx、超时、限流、鉴权失败和传输失败返回 error
func (a *InventoryHTTPAdapter) Validate(ctx context.Context, items []port.ValidationItem) (port.ValidationResult, error) {
	base, err := a.resolver.Resolve(ctx, a.serviceName)
	if err != nil {
		return port.ValidationResult{}, err
	}

	var resp validateResponse
	err = a.client.DoJSON(ctx, http.MethodPost, base+inventoryValidatePath, nil, validateRequest{Items: items}, &resp)
	if err != nil {
		if se, ok := httpclient.AsStatusError(err); ok && isRejection(se.StatusCode) {
			return port.ValidationResult{Valid: false, Reason: reasonFromBody(se.Body, "rejected by inventory service")}, nil
		}
		return port.ValidationResult{}, errors.Wrap(err, "inventory validate")
	}

	if !resp.Valid && resp.Message == "" {
		resp.Message = "items are not available"
	}
	return port.ValidationResult{Valid: resp.Valid, Reason: resp.Message}, nil
}

// isRejection 只有库存服务对请求内容的判定才算校验不通过
func isRejection(status int) bool {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden, http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return status >= 400 && status < 500
}

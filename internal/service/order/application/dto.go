// internal/service/order/application/dto.go
package application

import (
	"github.com/shopspring/decimal"

	"orderhub/internal/service/order/domain"
)

// MaxPageSize 列表单页上限
const MaxPageSize = 100

// CreateOrderItem 是创建订单请求里的一行
type CreateOrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// CreateOrderRequest 是创建订单用例的输入数据
type CreateOrderRequest struct {
	CustomerID string
	// IdempotencyKey 可选, 同一客户同一键只会产生一个订单
	IdempotencyKey string
	Items          []CreateOrderItem
}

func (r *CreateOrderRequest) domainItems() []domain.OrderItem {
	items := make([]domain.OrderItem, 0, len(r.Items))
	for _, it := range r.Items {
		items = append(items, domain.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, UnitPrice: it.UnitPrice})
	}
	return items
}

// ListOrdersQuery Status 为空表示不过滤; Page 从 0 开始, Size 为 0 表示全部
type ListOrdersQuery struct {
	Status string
	Page   int
	Size   int
}

func (q ListOrdersQuery) toFilter() (domain.ListFilter, error) {
	var filter domain.ListFilter
	if q.Status != "" {
		status, err := domain.ParseState(q.Status)
		if err != nil {
			return filter, err
		}
		filter.Status = &status
	}
	if q.Page < 0 || q.Size < 0 {
		return filter, domain.NewInvalidInputError(domain.ErrInvalidPaging, "page and size must not be negative")
	}
	if q.Size > 0 {
		size := min(q.Size, MaxPageSize)
		filter.Limit = size
		filter.Offset = q.Page * size
	}
	return filter, nil
}

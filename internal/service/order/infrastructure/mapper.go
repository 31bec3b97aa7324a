package infrastructure

import (
	"sort"

	"orderhub/internal/service/order/domain"
)

// ToDomainOrder 将数据库模型转换为领域模型
func ToDomainOrder(model *OrderModel) *domain.Order {
	if model == nil {
		return nil
	}
	rows := make([]OrderItemModel, len(model.Items))
	copy(rows, model.Items)
	sort.Slice(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	items := make([]domain.OrderItem, 0, len(rows))
	for _, row := range rows {
		items = append(items, domain.OrderItem{
			ProductID: row.ProductID,
			Quantity:  row.Quantity,
			UnitPrice: row.UnitPrice,
		})
	}

	var key string
	if model.IdempotencyKey != nil {
		key = *model.IdempotencyKey
	}
	return domain.RestoreOrder(
		model.ID, model.CustomerID, domain.State(model.Status), items,
		model.CreatedAt, model.UpdatedAt, model.Deleted, model.Version, key,
	)
}

// FromDomainOrder 将领域模型转换为数据库模型 (用于插入)
func FromDomainOrder(order *domain.Order) *OrderModel {
	if order == nil {
		return nil
	}
	model := &OrderModel{
		ID:          order.ID,
		CustomerID:  order.CustomerID,
		Status:      string(order.Status),
		TotalAmount: order.TotalAmount(),
		Deleted:     order.Deleted,
		Version:     order.Version,
		CreatedAt:   order.CreatedAt,
		UpdatedAt:   order.UpdatedAt,
	}
	if order.IdempotencyKey != "" {
		key := order.IdempotencyKey
		model.IdempotencyKey = &key
	}
	for i, item := range order.Items() {
		model.Items = append(model.Items, OrderItemModel{
			OrderID:   order.ID,
			Position:  i,
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return model
}

package port

import "context"

// ValidationItem 是发给库存/商品校验服务的订单行
type ValidationItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// ValidationResult 是业务校验结果。Valid 为 false 时 Reason 给出原因。
type ValidationResult struct {
	Valid  bool
	Reason string
}

// InventoryValidator 是库存校验服务的出站端口。
// 返回 error 仅表示传输失败或超时，与业务上的校验不通过严格区分。
type InventoryValidator interface {
	Validate(ctx context.Context, items []ValidationItem) (ValidationResult, error)
}

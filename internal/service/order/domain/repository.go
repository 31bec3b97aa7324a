// internal/service/order/domain/repository.go
package domain

import "context"

// ListFilter 是列表查询条件。Limit 为 0 表示不分页。
type ListFilter struct {
	Status *State
	Offset int
	Limit  int
}

// OrderRepository 定义了订单聚合的持久化接口。
// 它位于领域层，但由基础设施层实现。
type OrderRepository interface {
	// Save 首次保存时分配 ID/CreatedAt/Version, 之后按 ID + Version 乐观更新。
	// 版本不一致返回 ErrOrderConflict, 幂等键重复返回 ErrDuplicateIdempotencyKey。
	Save(ctx context.Context, order *Order) (*Order, error)

	// FindByID 审计读取，包含已软删除的订单。
	FindByID(ctx context.Context, id string) (*Order, error)

	// FindByIDForCustomer 只返回属于该客户且未删除的订单，否则 ErrOrderNotFound。
	FindByIDForCustomer(ctx context.Context, id, customerID string) (*Order, error)

	// FindByIdempotencyKey 按 (customerID, key) 查找一次逻辑创建请求对应的订单。
	FindByIdempotencyKey(ctx context.Context, customerID, key string) (*Order, error)

	// ListByCustomer 返回客户未删除的订单，按 createdAt 倒序、id 正序。
	ListByCustomer(ctx context.Context, customerID string, filter ListFilter) ([]*Order, error)
}

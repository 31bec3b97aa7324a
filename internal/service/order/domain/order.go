// internal/service/order/domain/order.go
package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceScale 单价允许的小数位数
const PriceScale = 2

// OrderItem 是订单行值对象，创建后不可修改
type OrderItem struct {
	ProductID string
	Quantity  int
	UnitPrice decimal.Decimal
}

// Subtotal = quantity × unitPrice
func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i OrderItem) validate(index int) error {
	if strings.TrimSpace(i.ProductID) == "" {
		return NewInvalidInputError(ErrInvalidItem, fmt.Sprintf("item %d: productId is required", index))
	}
	if i.Quantity <= 0 {
		return NewInvalidInputError(ErrInvalidItem, fmt.Sprintf("item %d (%s): quantity must be > 0", index, i.ProductID))
	}
	if i.UnitPrice.IsNegative() {
		return NewInvalidInputError(ErrInvalidItem, fmt.Sprintf("item %d (%s): price must be >= 0", index, i.ProductID))
	}
	// 扣款、事件与存储都按分计价
	if !i.UnitPrice.Equal(i.UnitPrice.Round(PriceScale)) {
		return NewInvalidInputError(ErrInvalidItem, fmt.Sprintf("item %d (%s): price must have at most %d decimal places", index, i.ProductID, PriceScale))
	}
	return nil
}

// Order 是订单聚合的根实体。
// items 与 totalAmount 只能在工厂函数里设置，保证总价始终与订单行一致。
type Order struct {
	ID             string
	CustomerID     string
	Status         State
	CreatedAt      time.Time
	UpdatedAt      time.Time
	Deleted        bool
	Version        int64
	IdempotencyKey string

	items       []OrderItem
	totalAmount decimal.Decimal
}

// 工厂函数: NewOrder 校验订单行并创建一个 PENDING 状态的新订单。
// ID 与 CreatedAt 由仓储在首次保存时分配。
func NewOrder(customerID string, items []OrderItem, idempotencyKey string) (*Order, error) {
	if strings.TrimSpace(customerID) == "" {
		return nil, NewInvalidInputError(ErrMissingIdentity, "customer identity is required")
	}
	if len(items) == 0 {
		return nil, NewInvalidInputError(ErrEmptyOrder, "order must contain at least one item")
	}
	for i, item := range items {
		if err := item.validate(i); err != nil {
			return nil, err
		}
	}

	o := &Order{
		CustomerID:     customerID,
		Status:         StatePending,
		IdempotencyKey: idempotencyKey,
	}
	o.setItems(items)
	return o, nil
}

// RestoreOrder 由仓储调用，从持久化数据重建订单。总价按订单行重新计算。
func RestoreOrder(id, customerID string, status State, items []OrderItem, createdAt, updatedAt time.Time, deleted bool, version int64, idempotencyKey string) *Order {
	o := &Order{
		ID:             id,
		CustomerID:     customerID,
		Status:         status,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
		Deleted:        deleted,
		Version:        version,
		IdempotencyKey: idempotencyKey,
	}
	o.setItems(items)
	return o
}

func (o *Order) setItems(items []OrderItem) {
	o.items = make([]OrderItem, len(items))
	copy(o.items, items)
	total := decimal.Zero
	for _, item := range o.items {
		total = total.Add(item.Subtotal())
	}
	o.totalAmount = total
}

// Items 返回订单行的副本
func (o *Order) Items() []OrderItem {
	out := make([]OrderItem, len(o.items))
	copy(out, o.items)
	return out
}

// TotalAmount = Σ quantity × unitPrice
func (o *Order) TotalAmount() decimal.Decimal { return o.totalAmount }

// OwnedBy 判断订单是否属于调用方，且对调用方可见
func (o *Order) OwnedBy(customerID string) bool {
	return !o.Deleted && o.CustomerID == customerID
}

// TransitionTo 按状态表流转状态。非法流转返回 InvalidTransition，且不修改订单。
func (o *Order) TransitionTo(next State) error {
	if !o.Status.CanTransitionTo(next) {
		err := NewInvalidInputError(ErrInvalidTransition,
			fmt.Sprintf("cannot transition order from %s to %s", o.Status, next))
		err.OrderID = o.ID
		return err
	}
	o.Status = next
	return nil
}

// MarkAsDeleted 软删除: 对客户不可见，但记录保留用于审计
func (o *Order) MarkAsDeleted() {
	o.Deleted = true
}

// Clone 深拷贝, 仓储与事件使用副本避免共享可变状态
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	c := *o
	c.items = o.Items()
	return &c
}

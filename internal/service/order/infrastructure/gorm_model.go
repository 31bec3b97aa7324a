package infrastructure

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderModel 对应数据库中的 orders 表
type OrderModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	CustomerID string `gorm:"size:64;not null;index:idx_orders_customer_status,priority:1;uniqueIndex:uk_orders_customer_idem,priority:1"`
	Status     string `gorm:"size:16;not null;index:idx_orders_customer_status,priority:2"`
	// 为空时存 NULL, 唯一索引不约束 NULL
	IdempotencyKey *string         `gorm:"size:128;uniqueIndex:uk_orders_customer_idem,priority:2"`
	TotalAmount    decimal.Decimal `gorm:"type:decimal(18,2);not null"`
	Deleted        bool            `gorm:"not null;default:false"`
	Version        int64           `gorm:"not null"`
	CreatedAt      time.Time       `gorm:"not null;index"`
	UpdatedAt      time.Time       `gorm:"not null"`

	Items []OrderItemModel `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderModel) TableName() string {
	return "orders"
}

// OrderItemModel 对应 order_items 表。订单行只在创建时写入。
type OrderItemModel struct {
	ID        uint            `gorm:"primaryKey"`
	OrderID   string          `gorm:"size:36;not null;index"`
	Position  int             `gorm:"not null"`
	ProductID string          `gorm:"size:64;not null"`
	Quantity  int             `gorm:"not null"`
	UnitPrice decimal.Decimal `gorm:"type:decimal(18,2);not null"`
}

// TableName 指定 GORM 应该使用的表名
func (OrderItemModel) TableName() string {
	return "order_items"
}

// internal/service/order/domain/event.go
package domain

import (
	"encoding/json"
	"time"
)

// EventType 订单生命周期事件类型
type EventType string

const (
	EventOrderCreated       EventType = "ORDER_CREATED"
	EventOrderCancelled     EventType = "ORDER_CANCELLED"
	EventOrderStatusUpdated EventType = "ORDER_STATUS_UPDATED"
	EventOrderDeleted       EventType = "ORDER_DELETED"
)

// Event 是发往事件总线的领域事件。
// ID/Sequence/OccurredAt 由事件发布器在发布时分配，下游据此去重和排序。
type Event struct {
	ID         string
	Type       EventType
	OrderID    string
	Sequence   uint64
	OccurredAt time.Time
	Payload    any
}

// OrderCreatedPayload 订单创建并支付成功
type OrderCreatedPayload struct {
	EventType   EventType   `json:"eventType"`
	OrderID     string      `json:"orderId"`
	CustomerID  string      `json:"customerId"`
	TotalAmount json.Number `json:"totalAmount"`
}

// OrderCancelledPayload 支付被拒后订单取消
type OrderCancelledPayload struct {
	EventType  EventType `json:"eventType"`
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
	Reason     string    `json:"reason,omitempty"`
}

// OrderStatusUpdatedPayload 订单状态变更
type OrderStatusUpdatedPayload struct {
	EventType EventType `json:"eventType"`
	OrderID   string    `json:"orderId"`
	Status    State     `json:"status"`
}

// OrderDeletedPayload 订单被软删除
type OrderDeletedPayload struct {
	EventType  EventType `json:"eventType"`
	OrderID    string    `json:"orderId"`
	CustomerID string    `json:"customerId"`
}

func NewOrderCreatedEvent(o *Order) Event {
	return Event{Type: EventOrderCreated, OrderID: o.ID, Payload: OrderCreatedPayload{
		EventType:   EventOrderCreated,
		OrderID:     o.ID,
		CustomerID:  o.CustomerID,
		TotalAmount: json.Number(o.TotalAmount().StringFixed(2)),
	}}
}

func NewOrderCancelledEvent(o *Order, reason string) Event {
	return Event{Type: EventOrderCancelled, OrderID: o.ID, Payload: OrderCancelledPayload{
		EventType:  EventOrderCancelled,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
		Reason:     reason,
	}}
}

func NewOrderStatusUpdatedEvent(o *Order) Event {
	return Event{Type: EventOrderStatusUpdated, OrderID: o.ID, Payload: OrderStatusUpdatedPayload{
		EventType: EventOrderStatusUpdated,
		OrderID:   o.ID,
		Status:    o.Status,
	}}
}

func NewOrderDeletedEvent(o *Order) Event {
	return Event{Type: EventOrderDeleted, OrderID: o.ID, Payload: OrderDeletedPayload{
		EventType:  EventOrderDeleted,
		OrderID:    o.ID,
		CustomerID: o.CustomerID,
	}}
}

// Encode 把事件编码为消息体: 负载字段 + eventId/sequence/occurredAt
func (e Event) Encode() ([]byte, error) {
	raw, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	meta := map[string]any{
		"eventId":    e.ID,
		"sequence":   e.Sequence,
		"occurredAt": e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		fields[k] = b
	}
	return json.Marshal(fields)
}

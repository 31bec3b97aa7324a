package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventEncode(t *testing.T) {
	o, err := NewOrder("cust-1", []OrderItem{item("P1", 2, "10.0"), item("P2", 1, "5.0")}, "")
	require.NoError(t, err)
	o.ID = "o-1"

	e := NewOrderCreatedEvent(o)
	e.ID = "o-1:ORDER_CREATED:1:1"
	e.Sequence = 1
	e.OccurredAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	body, err := e.Encode()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "ORDER_CREATED", decoded["eventType"])
	assert.Equal(t, "o-1", decoded["orderId"])
	assert.Equal(t, "cust-1", decoded["customerId"])
	assert.Equal(t, 25.0, decoded["totalAmount"])
	assert.Equal(t, "o-1:ORDER_CREATED:1:1", decoded["eventId"])
	assert.Equal(t, 1.0, decoded["sequence"])
	assert.Equal(t, "2026-01-02T03:04:05Z", decoded["occurredAt"])
}

func TestStatusAndDeletePayloads(t *testing.T) {
	o := RestoreOrder("o-2", "cust-2", StateShipped, []OrderItem{item("P1", 1, "1")}, time.Now(), time.Now(), false, 3, "")

	updated := NewOrderStatusUpdatedEvent(o)
	assert.Equal(t, EventOrderStatusUpdated, updated.Type)
	assert.Equal(t, OrderStatusUpdatedPayload{EventType: EventOrderStatusUpdated, OrderID: "o-2", Status: StateShipped}, updated.Payload)

	deleted := NewOrderDeletedEvent(o)
	assert.Equal(t, OrderDeletedPayload{EventType: EventOrderDeleted, OrderID: "o-2", CustomerID: "cust-2"}, deleted.Payload)

	cancelled := NewOrderCancelledEvent(o, "card declined")
	assert.Equal(t, "o-2", cancelled.OrderID)
	assert.Equal(t, "card declined", cancelled.Payload.(OrderCancelledPayload).Reason)
}

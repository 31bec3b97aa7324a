package saga

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/service/order/domain"
	"orderhub/internal/service/order/domain/port"
)

// InventoryHandler 负责库存/商品校验步骤。校验不通过时不产生任何持久化状态。
type InventoryHandler struct {
	NextHandler
}

func (h *InventoryHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.InventoryValidate")
	defer span.End()

	items := orderCtx.Order.Items()
	reqItems := make([]port.ValidationItem, 0, len(items))
	productIDs := make([]string, 0, len(items))
	for _, item := range items {
		reqItems = append(reqItems, port.ValidationItem{ProductID: item.ProductID, Quantity: item.Quantity})
		productIDs = append(productIDs, item.ProductID)
	}
	span.SetAttributes(attribute.StringSlice("items", productIDs))

	callCtx, cancel := orderCtx.call(ctx)
	result, err := orderCtx.Inventory.Validate(callCtx, reqItems)
	cancel()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Inventory validation unavailable")
		return domain.NewOrderError(domain.ErrDependencyUnavailable, orderCtx.Op, StepInventory, nil, err)
	}
	if !result.Valid {
		span.SetStatus(codes.Error, "Inventory validation rejected")
		logger.Ctx(ctx).Info().Str("customer_id", orderCtx.Order.CustomerID).Str("reason", result.Reason).Msg("Order rejected by inventory validation")
		oe := domain.NewOrderError(domain.ErrValidationFailed, orderCtx.Op, StepInventory, nil, nil)
		oe.Reason = result.Reason
		return oe
	}

	span.AddEvent("All items validated")
	return h.executeNext(orderCtx)
}

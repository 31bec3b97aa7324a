package saga

import (
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/service/order/domain"
)

// AnnounceHandler 是 Saga 的最后一步, 发布 ORDER_CREATED。
// 发布失败不影响已经确认的订单, 只记录下来。
type AnnounceHandler struct {
	NextHandler
}

func (h *AnnounceHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.AnnounceOrderCreated")
	defer span.End()

	span.SetAttributes(
		attribute.String("messaging.system", "kafka"),
		attribute.String("order.id", orderCtx.Order.ID),
	)

	result := orderCtx.Publisher.Publish(ctx, domain.NewOrderCreatedEvent(orderCtx.Order))
	if !result.Delivered {
		err := fmt.Errorf("event %s not delivered after %d attempts", result.EventID, result.Attempts)
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderCtx.Order.ID).Str("step", StepAnnounce).Msg("Failed to publish ORDER_CREATED")
		span.RecordError(err)
	} else {
		span.AddEvent("ORDER_CREATED published")
	}

	return h.executeNext(orderCtx)
}

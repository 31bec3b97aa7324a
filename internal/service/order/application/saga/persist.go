package saga

import (
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/service/order/domain"
)

// PersistHandler 以 PENDING 状态持久化订单
type PersistHandler struct {
	NextHandler
}

func (h *PersistHandler) Handle(orderCtx *OrderContext) error {
	ctx, span := orderCtx.Tracer.Start(orderCtx.Ctx, "saga.PersistOrder")
	defer span.End()

	callCtx, cancel := orderCtx.call(ctx)
	saved, err := orderCtx.Repo.Save(callCtx, orderCtx.Order)
	cancel()

	if errors.Is(err, domain.ErrDuplicateIdempotencyKey) {
		// 另一个实例上的同键请求先落库了
		span.AddEvent("Idempotency key already persisted")
		lookupCtx, cancel := orderCtx.call(ctx)
		existing, ferr := orderCtx.Repo.FindByIdempotencyKey(lookupCtx, orderCtx.Order.CustomerID, orderCtx.Order.IdempotencyKey)
		cancel()
		if ferr != nil {
			span.RecordError(ferr)
			span.SetStatus(codes.Error, "Idempotency lookup failed")
			return domain.NewOrderError(domain.ErrStorageUnavailable, orderCtx.Op, StepLookup, nil, ferr)
		}
		orderCtx.Order = existing
		orderCtx.Replayed = true
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Persist order failed")
		return domain.NewOrderError(domain.ErrStorageUnavailable, orderCtx.Op, StepPersist, nil, err)
	}

	orderCtx.Order = saved
	orderCtx.Committed = true
	span.SetAttributes(attribute.String("order.id", saved.ID))
	span.AddEvent("Pending order saved to DB")
	logger.Ctx(ctx).Info().Str("order_id", saved.ID).Str("customer_id", saved.CustomerID).
		Str("total_amount", saved.TotalAmount().StringFixed(2)).Msg("Order persisted as PENDING")

	return h.executeNext(orderCtx)
}

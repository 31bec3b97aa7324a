package saga

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/service/order/domain"
	"orderhub/internal/service/order/domain/port"
)

// PaymentHandler 对已落库的订单结算支付。
// orderID 即支付幂等键: 结果不确定时先按 orderID 查询，只有网关确认没有这笔扣款才用同一个键重新扣款。
type PaymentHandler struct {
	NextHandler
}

func (h *PaymentHandler) Handle(orderCtx *OrderContext) error {
	// 已落库, 不再跟随调用方取消; 每次调用仍受 CallTimeout 约束
	ctx, span := orderCtx.Tracer.Start(context.WithoutCancel(orderCtx.Ctx), "saga.Payment")
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderCtx.Order.ID),
		attribute.String("order.total", orderCtx.Order.TotalAmount().StringFixed(2)),
		attribute.Bool("payment.resumed", orderCtx.Resumed),
	)

	if err := orderCtx.LockOrder(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Lock order failed")
		return orderCtx.reconcile(StepLock, err)
	}

	if orderCtx.Resumed {
		// 持锁后重新读取, 期间可能已被别的请求结算
		callCtx, cancel := orderCtx.call(ctx)
		current, err := orderCtx.Repo.FindByID(callCtx, orderCtx.Order.ID)
		cancel()
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Reload order failed")
			return orderCtx.reconcile(StepPayment, err)
		}
		orderCtx.Order = current
		if current.Status != domain.StatePending {
			span.AddEvent("Order already settled")
			return nil
		}
	}

	result, err := h.settle(ctx, orderCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Payment outcome uncertain")
		return orderCtx.reconcile(StepPayment, err)
	}
	span.SetAttributes(
		attribute.String("payment.status", string(result.Status)),
		attribute.String("payment.id", result.PaymentID),
	)

	if result.Status == port.PaymentDeclined {
		return h.cancel(ctx, orderCtx, result.Reason)
	}

	if err := h.transition(ctx, orderCtx, domain.StateConfirmed); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Confirm order failed")
		return orderCtx.reconcile(StepConfirm, err)
	}
	span.AddEvent("Payment approved, order confirmed")
	return h.executeNext(orderCtx)
}

// settle 返回 APPROVED 或 DECLINED, 预算用尽仍不确定则返回 error
func (h *PaymentHandler) settle(ctx context.Context, orderCtx *OrderContext) (port.PaymentResult, error) {
	log := logger.Ctx(ctx).With().Str("order_id", orderCtx.Order.ID).Logger()
	policy := orderCtx.Policy
	charges := 0
	var lastErr error

	charge := func() (port.PaymentResult, bool) {
		charges++
		callCtx, cancel := orderCtx.call(ctx)
		defer cancel()
		res, err := orderCtx.Payment.Charge(callCtx, orderCtx.Order.ID, orderCtx.Order.TotalAmount())
		if err != nil {
			lastErr = err
			log.Warn().Err(err).Int("attempt", charges).Msg("Charge outcome uncertain, querying payment status")
			return res, false
		}
		return res, res.Status.Decisive()
	}

	if !orderCtx.Resumed {
		if res, ok := charge(); ok {
			return res, nil
		}
	}

	backoff := policy.StatusQueryBackoff
	for q := 0; q < policy.MaxStatusQueries; q++ {
		if q > 0 || !orderCtx.Resumed {
			if err := wait(ctx, backoff); err != nil {
				return port.PaymentResult{}, err
			}
			backoff *= 2
		}

		callCtx, cancel := orderCtx.call(ctx)
		res, err := orderCtx.Payment.Status(callCtx, orderCtx.Order.ID)
		cancel()
		if err != nil {
			lastErr = err
			continue
		}
		if res.Status.Decisive() {
			return res, nil
		}
		if res.Status == port.PaymentUnknown && charges < policy.MaxChargeAttempts {
			// 网关没有这笔扣款, 用同一个幂等键重新发起
			if res, ok := charge(); ok {
				return res, nil
			}
		}
	}

	if lastErr != nil {
		return port.PaymentResult{}, fmt.Errorf("payment still uncertain after %d charges: %w", charges, lastErr)
	}
	return port.PaymentResult{}, fmt.Errorf("payment still uncertain after %d charges and %d status queries", charges, policy.MaxStatusQueries)
}

// cancel 拒付: 订单转为 CANCELLED 并发布 ORDER_CANCELLED, 向调用方返回 PaymentDeclined
func (h *PaymentHandler) cancel(ctx context.Context, orderCtx *OrderContext, reason string) error {
	ctx, span := orderCtx.Tracer.Start(ctx, "saga.CancelDeclinedOrder")
	defer span.End()

	if err := h.transition(ctx, orderCtx, domain.StateCancelled); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Cancel declined order failed")
		return orderCtx.reconcile(StepCancel, err)
	}

	result := orderCtx.Publisher.Publish(ctx, domain.NewOrderCancelledEvent(orderCtx.Order, reason))
	if !result.Delivered {
		err := fmt.Errorf("event %s not delivered after %d attempts", result.EventID, result.Attempts)
		logger.Ctx(ctx).Warn().Err(err).Str("order_id", orderCtx.Order.ID).Msg("Failed to publish ORDER_CANCELLED")
		span.RecordError(err)
	}

	logger.Ctx(ctx).Info().Str("order_id", orderCtx.Order.ID).Str("reason", reason).Msg("Payment declined, order cancelled")
	oe := domain.NewOrderError(domain.ErrPaymentDeclined, orderCtx.Op, StepPayment, orderCtx.Order.Clone(), nil)
	oe.Reason = reason
	return oe
}

func (h *PaymentHandler) transition(ctx context.Context, orderCtx *OrderContext, next domain.State) error {
	updated := orderCtx.Order.Clone()
	if err := updated.TransitionTo(next); err != nil {
		return err
	}
	callCtx, cancel := orderCtx.call(ctx)
	defer cancel()
	saved, err := orderCtx.Repo.Save(callCtx, updated)
	if err != nil {
		return err
	}
	orderCtx.Order = saved
	return nil
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// internal/service/order/application/service.go
package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/pkg/metrics"
	"orderhub/internal/service/order/application/saga"
	"orderhub/internal/service/order/domain"
	"orderhub/internal/service/order/domain/port"
)

// 操作名, 用作指标与日志标签
const (
	OpCreateOrder  = "create_order"
	OpGetOrder     = "get_order"
	OpListOrders   = "list_orders"
	OpUpdateStatus = "update_order_status"
	OpDeleteOrder  = "delete_order"
)

// 变更步骤
const (
	stepLoad    = "load"
	stepSave    = "save"
	stepPublish = "publish"
)

// Config 协调器的超时与重试预算
type Config struct {
	CallTimeout        time.Duration
	StatusQueryBackoff time.Duration
	MaxStatusQueries   int
	MaxChargeAttempts  int
	MaxConflictRetries int
}

// OrderApplicationService 只关注业务流程编排, 所有依赖都通过构造函数注入。
type OrderApplicationService struct {
	repo      domain.OrderRepository
	inventory port.InventoryValidator
	payment   port.PaymentGateway
	publisher port.EventPublisher
	locker    port.OrderLocker
	tracer    trace.Tracer
	metrics   *metrics.OrderMetrics
	cfg       Config
}

func NewOrderApplicationService(
	repo domain.OrderRepository,
	inventory port.InventoryValidator,
	payment port.PaymentGateway,
	publisher port.EventPublisher,
	locker port.OrderLocker,
	tracer trace.Tracer,
	m *metrics.OrderMetrics,
	cfg Config,
) *OrderApplicationService {
	if cfg.MaxConflictRetries < 1 {
		cfg.MaxConflictRetries = 1
	}
	if cfg.MaxChargeAttempts < 1 {
		cfg.MaxChargeAttempts = 1
	}
	return &OrderApplicationService{
		repo:      repo,
		inventory: inventory,
		payment:   payment,
		publisher: publisher,
		locker:    locker,
		tracer:    tracer,
		metrics:   m,
		cfg:       cfg,
	}
}

// CreateOrder 校验 → 落库 → 支付 → 发布。
// 拒付时返回 PaymentDeclined, 错误里附带已 CANCELLED 的订单; 落库后的不确定故障返回 ReconciliationRequired。
func (s *OrderApplicationService) CreateOrder(ctx context.Context, req *CreateOrderRequest) (result *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "app.CreateOrder")
	defer span.End()
	defer s.observe(ctx, span, OpCreateOrder, time.Now(), &err)

	order, err := domain.NewOrder(req.CustomerID, req.domainItems(), strings.TrimSpace(req.IdempotencyKey))
	if err != nil {
		return nil, err
	}
	span.SetAttributes(
		attribute.String("customer.id", order.CustomerID),
		attribute.Int("order.items", len(req.Items)),
		attribute.String("order.total", order.TotalAmount().StringFixed(2)),
	)

	if order.IdempotencyKey != "" {
		unlock, err := s.lock(ctx, createLockKey(order.CustomerID, order.IdempotencyKey))
		if err != nil {
			return nil, domain.NewOrderError(domain.ErrDependencyUnavailable, OpCreateOrder, saga.StepLock, nil, err)
		}
		defer unlock()

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		existing, err := s.repo.FindByIdempotencyKey(callCtx, order.CustomerID, order.IdempotencyKey)
		cancel()
		switch {
		case err == nil:
			span.AddEvent("Idempotent replay")
			return s.replay(ctx, existing)
		case !errors.Is(err, domain.ErrOrderNotFound):
			return nil, domain.NewOrderError(domain.ErrStorageUnavailable, OpCreateOrder, saga.StepLookup, nil, err)
		}
	}

	orderCtx := s.newOrderContext(ctx, OpCreateOrder, order)
	defer orderCtx.Release()

	chain := new(saga.InventoryHandler)
	chain.
		SetNext(new(saga.PersistHandler)).
		SetNext(new(saga.PaymentHandler)).
		SetNext(new(saga.AnnounceHandler))

	err = chain.Handle(orderCtx)
	if orderCtx.Replayed {
		return s.replay(ctx, orderCtx.Order)
	}
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("order.id", orderCtx.Order.ID), attribute.String("order.status", string(orderCtx.Order.Status)))
	return orderCtx.Order, nil
}

// replay 幂等键命中已有订单: PENDING 的继续结算 (先查询), 其余直接返回
func (s *OrderApplicationService) replay(ctx context.Context, existing *domain.Order) (*domain.Order, error) {
	if existing.Deleted {
		return nil, domain.NewOrderError(domain.ErrNotFound, OpCreateOrder, saga.StepLookup, nil, nil)
	}
	if existing.Status != domain.StatePending {
		return existing, nil
	}

	logger.Ctx(ctx).Info().Str("order_id", existing.ID).Msg("Resuming payment settlement for pending order")
	orderCtx := s.newOrderContext(ctx, OpCreateOrder, existing)
	orderCtx.Committed = true
	orderCtx.Resumed = true
	defer orderCtx.Release()

	chain := new(saga.PaymentHandler)
	chain.SetNext(new(saga.AnnounceHandler))
	if err := chain.Handle(orderCtx); err != nil {
		return nil, err
	}
	return orderCtx.Order, nil
}

// GetOrder 只返回调用方自己的、未删除的订单
func (s *OrderApplicationService) GetOrder(ctx context.Context, id, customerID string) (result *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "app.GetOrder")
	defer span.End()
	defer s.observe(ctx, span, OpGetOrder, time.Now(), &err)
	span.SetAttributes(attribute.String("order.id", id))

	if err := requireIdentity(customerID); err != nil {
		return nil, err
	}
	return s.load(ctx, OpGetOrder, id, customerID)
}

// ListOrders 按 createdAt 倒序列出调用方未删除的订单
func (s *OrderApplicationService) ListOrders(ctx context.Context, customerID string, query ListOrdersQuery) (result []*domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "app.ListOrders")
	defer span.End()
	defer s.observe(ctx, span, OpListOrders, time.Now(), &err)

	if err := requireIdentity(customerID); err != nil {
		return nil, err
	}
	filter, err := query.toFilter()
	if err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	orders, err := s.repo.ListByCustomer(callCtx, customerID, filter)
	if err != nil {
		return nil, domain.NewOrderError(domain.ErrStorageUnavailable, OpListOrders, stepLoad, nil, err)
	}
	span.SetAttributes(attribute.Int("orders.count", len(orders)))
	return orders, nil
}

// UpdateOrderStatus 按状态表流转并发布 ORDER_STATUS_UPDATED
func (s *OrderApplicationService) UpdateOrderStatus(ctx context.Context, id, status, customerID string) (result *domain.Order, err error) {
	ctx, span := s.tracer.Start(ctx, "app.UpdateOrderStatus")
	defer span.End()
	defer s.observe(ctx, span, OpUpdateStatus, time.Now(), &err)
	span.SetAttributes(attribute.String("order.id", id), attribute.String("order.status.requested", status))

	if err := requireIdentity(customerID); err != nil {
		return nil, err
	}
	next, err := domain.ParseState(status)
	if err != nil {
		return nil, err
	}

	return s.mutate(ctx, OpUpdateStatus, id, customerID, func(o *domain.Order) error {
		return o.TransitionTo(next)
	}, domain.NewOrderStatusUpdatedEvent)
}

// DeleteOrder 软删除: 订单对客户不可见, 记录保留
func (s *OrderApplicationService) DeleteOrder(ctx context.Context, id, customerID string) (err error) {
	ctx, span := s.tracer.Start(ctx, "app.DeleteOrder")
	defer span.End()
	defer s.observe(ctx, span, OpDeleteOrder, time.Now(), &err)
	span.SetAttributes(attribute.String("order.id", id))

	if err := requireIdentity(customerID); err != nil {
		return err
	}
	_, err = s.mutate(ctx, OpDeleteOrder, id, customerID, func(o *domain.Order) error {
		o.MarkAsDeleted()
		return nil
	}, domain.NewOrderDeletedEvent)
	return err
}

// mutate 在订单锁内 读取 → 变更 → 保存 → 发布; 版本冲突时重新读取并重新校验。
// 事件在释放锁之前发布, 同一订单的事件序号与提交顺序一致。
func (s *OrderApplicationService) mutate(ctx context.Context, op, id, customerID string, change func(*domain.Order) error, announce func(*domain.Order) domain.Event) (*domain.Order, error) {
	unlock, err := s.lock(ctx, saga.OrderLockKey(id))
	if err != nil {
		return nil, domain.NewOrderError(domain.ErrDependencyUnavailable, op, saga.StepLock, nil, err)
	}
	defer unlock()

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxConflictRetries; attempt++ {
		order, err := s.load(ctx, op, id, customerID)
		if err != nil {
			return nil, err
		}
		if err := change(order); err != nil {
			return nil, err
		}

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		saved, err := s.repo.Save(callCtx, order)
		cancel()
		switch {
		case err == nil:
			s.publish(ctx, announce(saved))
			return saved, nil
		case errors.Is(err, domain.ErrOrderConflict):
			lastErr = err
			logger.Ctx(ctx).Warn().Str("order_id", id).Int("attempt", attempt).Msg("Order version conflict, reloading")
		case errors.Is(err, domain.ErrOrderNotFound):
			return nil, domain.NewOrderError(domain.ErrNotFound, op, stepSave, nil, nil)
		default:
			return nil, domain.NewOrderError(domain.ErrStorageUnavailable, op, stepSave, nil, err)
		}
	}
	return nil, domain.NewOrderError(domain.ErrStorageUnavailable, op, stepSave, nil, lastErr)
}

func (s *OrderApplicationService) load(ctx context.Context, op, id, customerID string) (*domain.Order, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	order, err := s.repo.FindByIDForCustomer(callCtx, id, customerID)
	switch {
	case err == nil:
		return order, nil
	case errors.Is(err, domain.ErrOrderNotFound):
		// 不区分不存在与不属于调用方
		return nil, domain.NewOrderError(domain.ErrNotFound, op, stepLoad, nil, nil)
	default:
		return nil, domain.NewOrderError(domain.ErrStorageUnavailable, op, stepLoad, nil, err)
	}
}

// publish 发布失败不影响业务结果, 只记录
func (s *OrderApplicationService) publish(ctx context.Context, event domain.Event) {
	ctx, span := s.tracer.Start(ctx, "app.PublishEvent")
	defer span.End()
	span.SetAttributes(attribute.String("event.type", string(event.Type)))

	result := s.publisher.Publish(ctx, event)
	if result.Delivered {
		return
	}
	err := fmt.Errorf("event %s not delivered after %d attempts", result.EventID, result.Attempts)
	span.RecordError(err)
	logger.Ctx(ctx).Warn().Err(err).Str("order_id", event.OrderID).Str("event_type", string(event.Type)).
		Str("step", stepPublish).Msg("Event delivery failed, operation result unchanged")
}

func (s *OrderApplicationService) newOrderContext(ctx context.Context, op string, order *domain.Order) *saga.OrderContext {
	return &saga.OrderContext{
		Ctx:       ctx,
		Op:        op,
		Order:     order,
		Tracer:    s.tracer,
		Repo:      s.repo,
		Inventory: s.inventory,
		Payment:   s.payment,
		Publisher: s.publisher,
		Locker:    s.locker,
		Policy: saga.Policy{
			CallTimeout:        s.cfg.CallTimeout,
			StatusQueryBackoff: s.cfg.StatusQueryBackoff,
			MaxStatusQueries:   s.cfg.MaxStatusQueries,
			MaxChargeAttempts:  s.cfg.MaxChargeAttempts,
		},
	}
}

func (s *OrderApplicationService) lock(ctx context.Context, key string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
	defer cancel()
	return s.locker.Lock(lockCtx, key)
}

// observe 记录指标; 系统故障带上 order_id / step / cause 记日志
func (s *OrderApplicationService) observe(ctx context.Context, span trace.Span, op string, start time.Time, errp *error) {
	err := *errp
	s.metrics.ObserveOperation(op, domain.KindLabel(err), time.Since(start))
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, domain.KindLabel(err))

	var step, orderID string
	if oe, ok := domain.AsOrderError(err); ok {
		step, orderID = oe.Step, oe.OrderID
	}
	log := logger.Ctx(ctx)
	switch {
	case errors.Is(err, domain.ErrReconciliationRequired):
		s.metrics.ReconciliationRequired(op, step)
		log.Error().Err(err).Bool("reconciliation", true).Str("op", op).Str("step", step).Str("order_id", orderID).
			Msg("Order committed but follow-up step failed, reconciliation required")
	case errors.Is(err, domain.ErrStorageUnavailable), errors.Is(err, domain.ErrDependencyUnavailable):
		log.Error().Err(err).Str("op", op).Str("step", step).Str("order_id", orderID).Msg("Order operation failed")
	default:
		log.Info().Err(err).Str("op", op).Str("outcome", domain.KindLabel(err)).Msg("Order operation rejected")
	}
}

func createLockKey(customerID, key string) string {
	return "create:" + customerID + ":" + key
}

func requireIdentity(customerID string) error {
	if strings.TrimSpace(customerID) == "" {
		return domain.NewInvalidInputError(domain.ErrMissingIdentity, "customer identity is required")
	}
	return nil
}

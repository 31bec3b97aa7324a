package saga

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/trace"

	"orderhub/internal/service/order/domain"
	"orderhub/internal/service/order/domain/port"
)

// 步骤名, 出现在错误、日志和指标标签里
const (
	StepLookup    = "lookup"
	StepInventory = "inventory"
	StepPersist   = "persist"
	StepLock      = "lock"
	StepPayment   = "payment"
	StepConfirm   = "confirm"
	StepCancel    = "cancel"
	StepAnnounce  = "announce"
)

// Policy 是每次外部调用的超时与支付结算的重试预算
type Policy struct {
	CallTimeout        time.Duration
	StatusQueryBackoff time.Duration
	MaxStatusQueries   int
	MaxChargeAttempts  int
}

// OrderContext 在 Saga 流程中传递上下文数据。
// 所有外部依赖都是出站端口。
type OrderContext struct {
	Ctx    context.Context
	Op     string
	Order  *domain.Order
	Tracer trace.Tracer

	Repo      domain.OrderRepository
	Inventory port.InventoryValidator
	Payment   port.PaymentGateway
	Publisher port.EventPublisher
	Locker    port.OrderLocker
	Policy    Policy

	// Committed 订单已经落库, 之后的失败只能上报对账, 不能当作没发生
	Committed bool
	// Resumed 继续结算一个已存在的 PENDING 订单, 必须先查询支付状态
	Resumed bool
	// Replayed 幂等键命中了已有订单, 由调用方按重放处理
	Replayed bool

	unlocks []func()
}

// OrderLockKey 是同一订单所有变更共用的锁
func OrderLockKey(orderID string) string {
	return "order:" + orderID
}

// LockOrder 在 CallTimeout 内获取订单锁, 由 Release 统一释放
func (c *OrderContext) LockOrder(ctx context.Context) error {
	lockCtx, cancel := context.WithTimeout(ctx, c.Policy.CallTimeout)
	defer cancel()
	unlock, err := c.Locker.Lock(lockCtx, OrderLockKey(c.Order.ID))
	if err != nil {
		return err
	}
	c.unlocks = append(c.unlocks, unlock)
	return nil
}

// Release 逆序释放流程中拿到的锁
func (c *OrderContext) Release() {
	for i := len(c.unlocks) - 1; i >= 0; i-- {
		c.unlocks[i]()
	}
	c.unlocks = nil
}

// call 为一次外部调用加上超时
func (c *OrderContext) call(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.Policy.CallTimeout)
}

// reconcile 订单已落库后的系统故障, 附带当前订单供对账
func (c *OrderContext) reconcile(step string, cause error) error {
	return domain.NewOrderError(domain.ErrReconciliationRequired, c.Op, step, c.Order.Clone(), cause)
}

type Handler interface {
	SetNext(handler Handler) Handler
	Handle(orderCtx *OrderContext) error
}

type NextHandler struct {
	next Handler
}

func (h *NextHandler) SetNext(handler Handler) Handler {
	h.next = handler
	return handler
}

func (h *NextHandler) executeNext(orderCtx *OrderContext) error {
	if h.next != nil {
		return h.next.Handle(orderCtx)
	}
	return nil
}

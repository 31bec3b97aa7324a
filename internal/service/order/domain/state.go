// internal/service/order/domain/state.go
package domain

import "strings"

// State 定义了订单的生命周期状态
type State string

const (
	StatePending    State = "PENDING"    // 已持久化，等待支付结果
	StateConfirmed  State = "CONFIRMED"  // 支付成功
	StateProcessing State = "PROCESSING" // 仓库处理中
	StateShipped    State = "SHIPPED"    // 已发货
	StateDelivered  State = "DELIVERED"  // 已签收 (终态，可退款)
	StateCancelled  State = "CANCELLED"  // 已取消 (终态)
	StateRefunded   State = "REFUNDED"   // 已退款 (终态)
)

// transitions 是唯一的状态流转表，所有状态变更都必须先经过它的校验。
var transitions = map[State][]State{
	StatePending:    {StateConfirmed, StateCancelled},
	StateConfirmed:  {StateProcessing, StateCancelled},
	StateProcessing: {StateShipped, StateCancelled},
	StateShipped:    {StateDelivered},
	StateDelivered:  {StateRefunded},
}

// AllStates 按生命周期顺序返回所有状态
func AllStates() []State {
	return []State{
		StatePending, StateConfirmed, StateProcessing, StateShipped,
		StateDelivered, StateCancelled, StateRefunded,
	}
}

// ParseState 把外部传入的状态字符串解析为 State，大小写不敏感。
func ParseState(raw string) (State, error) {
	candidate := State(strings.ToUpper(strings.TrimSpace(raw)))
	for _, s := range AllStates() {
		if s == candidate {
			return s, nil
		}
	}
	return "", NewInvalidInputError(ErrUnknownStatus, "unknown order status: "+raw)
}

// CanTransitionTo 判断从当前状态到 next 的流转是否在状态表中
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal 终态不允许再回退
func (s State) IsTerminal() bool {
	return s == StateDelivered || s == StateCancelled || s == StateRefunded
}

func (s State) String() string { return string(s) }

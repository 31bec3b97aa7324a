// internal/service/order/domain/errors.go
package domain

import (
	"errors"
	"strings"
)

// 错误类别。调用方统一使用 errors.Is(err, domain.ErrXxx) 判断。
var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrValidationFailed       = errors.New("validation failed")
	ErrPaymentDeclined        = errors.New("payment declined")
	ErrStorageUnavailable     = errors.New("storage unavailable")
	ErrDependencyUnavailable  = errors.New("dependency unavailable")
	ErrNotFound               = errors.New("order not found")
	ErrReconciliationRequired = errors.New("reconciliation required")
)

// InvalidInput 的细分错误码
var (
	ErrEmptyOrder        = errors.New("empty order")
	ErrInvalidItem       = errors.New("invalid item")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrUnknownStatus     = errors.New("unknown status")
	ErrMissingIdentity   = errors.New("missing caller identity")
	ErrInvalidPaging     = errors.New("invalid paging")
)

// 仓储层错误, 由应用层翻译成上面的类别
var (
	ErrOrderNotFound           = errors.New("order record not found")
	ErrOrderConflict           = errors.New("order version conflict")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
)

// OrderError 是协调器返回给调用方的类型化失败。
// Order 在需要时携带已持久化的订单 (如被拒付后 CANCELLED 的订单、需要对账的订单)。
type OrderError struct {
	Kind    error
	Code    error
	Op      string
	Step    string
	OrderID string
	Reason  string
	Order   *Order
	Err     error
}

func (e *OrderError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Code != nil {
		b.WriteString(" (" + e.Code.Error() + ")")
	}
	if e.Op != "" {
		b.WriteString(": op=" + e.Op)
	}
	if e.Step != "" {
		b.WriteString(" step=" + e.Step)
	}
	if e.OrderID != "" {
		b.WriteString(" order=" + e.OrderID)
	}
	if e.Reason != "" {
		b.WriteString(": " + e.Reason)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *OrderError) Unwrap() error { return e.Err }

// Is 让 errors.Is 同时匹配类别和细分错误码
func (e *OrderError) Is(target error) bool {
	return target == e.Kind || (e.Code != nil && target == e.Code)
}

// NewInvalidInputError 构造调用方输入错误
func NewInvalidInputError(code error, reason string) *OrderError {
	return &OrderError{Kind: ErrInvalidInput, Code: code, Reason: reason}
}

// NewOrderError 构造指定类别的错误
func NewOrderError(kind error, op, step string, order *Order, cause error) *OrderError {
	e := &OrderError{Kind: kind, Op: op, Step: step, Order: order, Err: cause}
	if order != nil {
		e.OrderID = order.ID
	}
	return e
}

// AsOrderError 取出错误链上的 *OrderError
func AsOrderError(err error) (*OrderError, bool) {
	var oe *OrderError
	if errors.As(err, &oe) {
		return oe, true
	}
	return nil, false
}

// KindLabel 返回错误类别的短名称，用于指标标签和接口层的错误响应
func KindLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrValidationFailed):
		return "validation_failed"
	case errors.Is(err, ErrPaymentDeclined):
		return "payment_declined"
	case errors.Is(err, ErrReconciliationRequired):
		return "reconciliation_required"
	case errors.Is(err, ErrStorageUnavailable):
		return "storage_unavailable"
	case errors.Is(err, ErrDependencyUnavailable):
		return "dependency_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	default:
		return "internal"
	}
}

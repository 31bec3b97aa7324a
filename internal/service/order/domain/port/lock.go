package port

import "context"

// OrderLocker 提供按 key 的互斥，用于同一订单的变更串行化。
// 返回的 unlock 必须被调用，且可重复调用。
type OrderLocker interface {
	Lock(ctx context.Context, key string) (unlock func(), err error)
}

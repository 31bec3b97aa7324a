package port

import (
	"context"

	"orderhub/internal/service/order/domain"
)

// EventBus 是消息总线的出站端口，每次调用只做一次投递尝试。
type EventBus interface {
	Publish(ctx context.Context, event domain.Event) error
}

// DeadLetterSink 接收重试耗尽的事件，供带外重放。
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, event domain.Event, cause error) error
}

// PublishResult 是一次发布的最终结果
type PublishResult struct {
	EventID   string
	Delivered bool
	Attempts  int
}

// EventPublisher 带有限次重试的尽力而为发布。失败不会以 error 返回给业务流程。
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event) PublishResult
}

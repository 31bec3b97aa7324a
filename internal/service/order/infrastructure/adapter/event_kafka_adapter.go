package adapter

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"orderhub/internal/pkg/mq"
	"orderhub/internal/service/order/domain"
)

// KafkaEventBus 实现了 port.EventBus 接口。
// 消息 key 为订单 ID，同一订单的事件进入同一分区。
type KafkaEventBus struct {
	writer mq.MessageWriter
}

func NewKafkaEventBus(writer mq.MessageWriter) *KafkaEventBus {
	return &KafkaEventBus{writer: writer}
}

func (b *KafkaEventBus) Publish(ctx context.Context, event domain.Event) error {
	value, err := event.Encode()
	if err != nil {
		return errors.Wrapf(err, "encode %s event", event.Type)
	}
	// 调用通用的 mq.ProduceMessage，它会自动处理追踪上下文注入
	return mq.ProduceMessage(ctx, b.writer, []byte(event.OrderID), value, eventHeaders(event)...)
}

// KafkaDeadLetterSink 把投递失败的事件写入死信主题，头部记录原主题和失败原因
type KafkaDeadLetterSink struct {
	writer      mq.MessageWriter
	sourceTopic string
}

func NewKafkaDeadLetterSink(writer mq.MessageWriter, sourceTopic string) *KafkaDeadLetterSink {
	return &KafkaDeadLetterSink{writer: writer, sourceTopic: sourceTopic}
}

func (s *KafkaDeadLetterSink) DeadLetter(ctx context.Context, event domain.Event, cause error) error {
	value, err := event.Encode()
	if err != nil {
		return errors.Wrapf(err, "encode %s event", event.Type)
	}
	message := ""
	if cause != nil {
		message = cause.Error()
	}
	headers := append(eventHeaders(event),
		kafka.Header{Key: mq.HeaderOriginalTopic, Value: []byte(s.sourceTopic)},
		kafka.Header{Key: mq.HeaderExceptionFqcn, Value: []byte(fmt.Sprintf("%T", errors.Cause(cause)))},
		kafka.Header{Key: mq.HeaderExceptionMessage, Value: []byte(message)},
	)
	return mq.ProduceMessage(ctx, s.writer, []byte(event.OrderID), value, headers...)
}

func eventHeaders(event domain.Event) []kafka.Header {
	return []kafka.Header{
		{Key: mq.HeaderEventID, Value: []byte(event.ID)},
		{Key: mq.HeaderEventType, Value: []byte(event.Type)},
	}
}

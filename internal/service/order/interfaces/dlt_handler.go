// internal/service/order/interfaces/dlt_handler.go
package interfaces

import (
	"context"
	"errors"

	"github.com/segmentio/kafka-go"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/pkg/mq"
)

// MessageReader 是 *kafka.Reader 的子集
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// DltConsumerAdapter 监听死信队列并记录结构化日志, 供带外重放排查。
// 实现 bootstrap.Runner, 随服务启停。
type DltConsumerAdapter struct {
	reader MessageReader
	topic  string
}

func NewDltConsumerAdapter(reader MessageReader, topic string) *DltConsumerAdapter {
	return &DltConsumerAdapter{reader: reader, topic: topic}
}

// Run 阻塞直到 ctx 取消
func (a *DltConsumerAdapter) Run(ctx context.Context) error {
	log := logger.Ctx(ctx)
	log.Info().Str("topic", a.topic).Msg("DLT consumer started")
	defer func() {
		if err := a.reader.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing DLT reader")
		}
		log.Info().Str("topic", a.topic).Msg("DLT consumer stopped")
	}()

	for {
		msg, err := a.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			log.Warn().Err(err).Msg("Failed to fetch dead letter, retrying")
			continue
		}

		msgCtx := mq.ExtractTraceContext(ctx, msg)
		logDeadLetter(msgCtx, parseDeadLetter(msg))

		// 死信只记录, 记录完即提交
		if err := a.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Int64("offset", msg.Offset).Msg("Failed to commit dead letter")
		}
	}
}

// deadLetter 是死信消息头里携带的排查信息
type deadLetter struct {
	EventID          string
	EventType        string
	OriginalTopic    string
	ExceptionFqcn    string
	ExceptionMessage string
	Key              string
	Value            string
}

func parseDeadLetter(msg kafka.Message) deadLetter {
	return deadLetter{
		EventID:          mq.HeaderValue(msg, mq.HeaderEventID),
		EventType:        mq.HeaderValue(msg, mq.HeaderEventType),
		OriginalTopic:    mq.HeaderValue(msg, mq.HeaderOriginalTopic),
		ExceptionFqcn:    mq.HeaderValue(msg, mq.HeaderExceptionFqcn),
		ExceptionMessage: mq.HeaderValue(msg, mq.HeaderExceptionMessage),
		Key:              string(msg.Key),
		Value:            string(msg.Value),
	}
}

func logDeadLetter(ctx context.Context, dl deadLetter) {
	logger.Ctx(ctx).Error().
		Str("reason", "dead_letter_message_received").
		Str("event_id", dl.EventID).
		Str("event_type", dl.EventType).
		Str("order_id", dl.Key).
		Str("original_topic", dl.OriginalTopic).
		Str("exception_fqcn", dl.ExceptionFqcn).
		Str("exception_message", dl.ExceptionMessage).
		Str("value", dl.Value).
		Msg("CRITICAL: Dead letter message received")
}

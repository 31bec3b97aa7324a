package interfaces

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderhub/internal/pkg/mq"
)

// queueReader 依次返回队列中的消息, 取空后阻塞到 ctx 取消
type queueReader struct {
	msgs      chan kafka.Message
	committed chan kafka.Message
	closed    bool
}

func newQueueReader(msgs ...kafka.Message) *queueReader {
	r := &queueReader{msgs: make(chan kafka.Message, len(msgs)), committed: make(chan kafka.Message, len(msgs))}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *queueReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *queueReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	for _, m := range msgs {
		r.committed <- m
	}
	return nil
}

func (r *queueReader) Close() error {
	r.closed = true
	return nil
}

func deadLetterMessage() kafka.Message {
	return kafka.Message{
		Key:   []byte("o-1"),
		Value: []byte(`{"eventType":"ORDER_CREATED"}`),
		Headers: []kafka.Header{
			{Key: mq.HeaderEventID, Value: []byte("o-1:ORDER_CREATED:1:1")},
			{Key: mq.HeaderEventType, Value: []byte("ORDER_CREATED")},
			{Key: mq.HeaderOriginalTopic, Value: []byte("order-events")},
			{Key: mq.HeaderExceptionFqcn, Value: []byte("*errors.errorString")},
			{Key: mq.HeaderExceptionMessage, Value: []byte("broker unavailable")},
		},
	}
}

func TestParseDeadLetter(t *testing.T) {
	dl := parseDeadLetter(deadLetterMessage())
	assert.Equal(t, deadLetter{
		EventID:          "o-1:ORDER_CREATED:1:1",
		EventType:        "ORDER_CREATED",
		OriginalTopic:    "order-events",
		ExceptionFqcn:    "*errors.errorString",
		ExceptionMessage: "broker unavailable",
		Key:              "o-1",
		Value:            `{"eventType":"ORDER_CREATED"}`,
	}, dl)
}

func TestDltConsumerCommitsAndStops(t *testing.T) {
	reader := newQueueReader(deadLetterMessage(), deadLetterMessage())
	consumer := NewDltConsumerAdapter(reader, "order-events-dlt")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- consumer.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case m := <-reader.committed:
			assert.Equal(t, "o-1", string(m.Key))
		case <-time.After(time.Second):
			t.Fatal("dead letter was not committed")
		}
	}

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("consumer did not stop")
	}
	assert.True(t, reader.closed)
}

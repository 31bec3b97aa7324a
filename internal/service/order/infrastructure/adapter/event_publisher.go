package adapter

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/trace"

	"orderhub/internal/pkg/logger"
	"orderhub/internal/pkg/metrics"
	"orderhub/internal/service/order/domain"
	"orderhub/internal/service/order/domain/port"
)

// PublisherConfig 发布重试预算
type PublisherConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	AttemptTimeout time.Duration
}

// EventPublisher 实现了 port.EventPublisher 接口。
// 在总线之上做有限次重试；耗尽后计数、记日志并写入死信，不向业务流程返回错误。
type EventPublisher struct {
	bus     port.EventBus
	sink    port.DeadLetterSink
	metrics *metrics.OrderMetrics
	cfg     PublisherConfig

	seq   atomic.Uint64
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration)
}

// NewEventPublisher sink 可以为 nil
func NewEventPublisher(bus port.EventBus, sink port.DeadLetterSink, m *metrics.OrderMetrics, cfg PublisherConfig) *EventPublisher {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = 2 * time.Second
	}
	return &EventPublisher{
		bus:     bus,
		sink:    sink,
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		sleep:   sleepContext,
	}
}

func (p *EventPublisher) Publish(ctx context.Context, event domain.Event) port.PublishResult {
	event.Sequence = p.seq.Add(1)
	event.OccurredAt = p.now().UTC()
	event.ID = fmt.Sprintf("%s:%s:%d:%d", event.OrderID, event.Type, event.OccurredAt.UnixNano(), event.Sequence)

	// 与调用方的取消/超时解耦，但保留链路关联
	publishCtx := trace.ContextWithRemoteSpanContext(context.Background(), trace.SpanContextFromContext(ctx))
	log := logger.Ctx(publishCtx)

	backoff := p.cfg.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(publishCtx, p.cfg.AttemptTimeout)
		lastErr = p.bus.Publish(attemptCtx, event)
		cancel()

		if lastErr == nil {
			p.metrics.PublishAttempt(string(event.Type), "ok")
			return port.PublishResult{EventID: event.ID, Delivered: true, Attempts: attempt}
		}

		p.metrics.PublishAttempt(string(event.Type), "error")
		log.Warn().Err(lastErr).
			Str("event_id", event.ID).
			Str("event_type", string(event.Type)).
			Str("order_id", event.OrderID).
			Int("attempt", attempt).
			Msg("event publish attempt failed")

		if attempt < p.cfg.MaxAttempts && backoff > 0 {
			p.sleep(publishCtx, backoff)
			backoff *= 2
			if p.cfg.MaxBackoff > 0 && backoff > p.cfg.MaxBackoff {
				backoff = p.cfg.MaxBackoff
			}
		}
	}

	p.metrics.DeliveryFailed(string(event.Type))
	log.Error().Err(lastErr).
		Str("event_id", event.ID).
		Str("event_type", string(event.Type)).
		Str("order_id", event.OrderID).
		Int("attempts", p.cfg.MaxAttempts).
		Msg("event delivery failed, retry budget exhausted")

	p.deadLetter(publishCtx, event, lastErr)
	return port.PublishResult{EventID: event.ID, Delivered: false, Attempts: p.cfg.MaxAttempts}
}

func (p *EventPublisher) deadLetter(ctx context.Context, event domain.Event, cause error) {
	if p.sink == nil {
		return
	}
	sinkCtx, cancel := context.WithTimeout(ctx, p.cfg.AttemptTimeout)
	defer cancel()
	if err := p.sink.DeadLetter(sinkCtx, event, cause); err != nil {
		p.metrics.DeadLettered("failed")
		logger.Ctx(ctx).Error().Err(err).
			Str("event_id", event.ID).
			Str("order_id", event.OrderID).
			Msg("CRITICAL: failed to write event to dead letter topic")
		return
	}
	p.metrics.DeadLettered("written")
}

func sleepContext(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

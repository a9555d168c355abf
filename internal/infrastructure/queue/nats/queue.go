package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/ebookgov/property-voice-agent/internal/core/domain"
	"github.com/ebookgov/property-voice-agent/internal/infrastructure/resilience"
)

// Bus broadcasts cache invalidation events. Every API instance subscribes
// without a queue group so each one receives every event.
type Bus struct {
	conn         *nats.Conn
	subject      string
	flushTimeout time.Duration
	executor     *resilience.Executor
	logger       *slog.Logger
}

type Options struct {
	Name                 string
	ConnectTimeout       time.Duration
	ReconnectWait        time.Duration
	MaxReconnects        int
	RetryOnFailedConnect *bool
	FlushTimeout         time.Duration
	ResilienceExecutor   *resilience.Executor
	Logger               *slog.Logger
}

func New(url, subject string) (*Bus, error) {
	return NewWithOptions(url, subject, Options{})
}

func NewWithOptions(url, subject string, options Options) (*Bus, error) {
	connectTimeout := options.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = 2 * time.Second
	}
	reconnectWait := options.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}
	maxReconnects := options.MaxReconnects
	if maxReconnects <= 0 {
		maxReconnects = 60
	}
	retryOnFailedConnect := true
	if options.RetryOnFailedConnect != nil {
		retryOnFailedConnect = *options.RetryOnFailedConnect
	}
	flushTimeout := options.FlushTimeout
	if flushTimeout <= 0 {
		flushTimeout = 5 * time.Second
	}
	name := options.Name
	if name == "" {
		name = "property-voice-agent"
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := nats.Connect(
		url,
		nats.Name(name),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.RetryOnFailedConnect(retryOnFailedConnect),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats_disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats_reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &Bus{
		conn:         conn,
		subject:      subject,
		flushTimeout: flushTimeout,
		executor:     options.ResilienceExecutor,
		logger:       logger,
	}, nil
}

func (b *Bus) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}

func (b *Bus) PublishInvalidation(ctx context.Context, event domain.InvalidationEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	call := func(_ context.Context) error {
		if err := b.conn.Publish(b.subject, payload); err != nil {
			return fmt.Errorf("nats publish: %w", err)
		}
		return nil
	}

	if b.executor != nil {
		err = b.executor.Execute(ctx, "nats.publish", call, classifyPublishError)
	} else {
		err = call(ctx)
	}
	if err != nil {
		return publishFailure(err)
	}
	return nil
}

// SubscribeInvalidation delivers events to handler until ctx is cancelled,
// then drains the subscription.
func (b *Bus) SubscribeInvalidation(ctx context.Context, handler func(context.Context, domain.InvalidationEvent) error) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		if ctx.Err() != nil {
			return
		}
		event, err := decodeEvent(msg.Data)
		if err != nil {
			b.logger.Warn("invalidation_event_malformed", "error", err)
			return
		}

		handlerCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		if err := handler(handlerCtx, event); err != nil {
			b.logger.Warn("invalidation_event_failed",
				"subject_id", event.SubjectID,
				"fact_type", string(event.FactType),
				"all", event.All,
				"origin", event.Origin,
				"error", err,
			)
		}
	})
	if err != nil {
		return fmt.Errorf("nats subscribe: %w", err)
	}

	if err := b.conn.FlushTimeout(b.flushTimeout); err != nil {
		// Callers retry the whole subscription, so the half-registered one must go.
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats flush: %w", err)
	}

	<-ctx.Done()
	if err := sub.Drain(); err != nil {
		return fmt.Errorf("nats drain subscription: %w", err)
	}
	if err := b.conn.FlushTimeout(b.flushTimeout); err != nil {
		return fmt.Errorf("nats flush after drain: %w", err)
	}
	return nil
}

func encodeEvent(event domain.InvalidationEvent) ([]byte, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, fmt.Errorf("marshal invalidation event: %w", err)
	}
	return payload, nil
}

func decodeEvent(data []byte) (domain.InvalidationEvent, error) {
	var event domain.InvalidationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return domain.InvalidationEvent{}, fmt.Errorf("decode invalidation event: %w", err)
	}
	if !event.All && event.SubjectID == "" {
		return domain.InvalidationEvent{}, domain.WrapError(domain.ErrInvalidInput, "decode invalidation event", fmt.Errorf("subject_id is required unless all is set"))
	}
	return event, nil
}

// Package queue carries click events from the API to the analytics worker over RabbitMQ.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/lold2424/LessURL-Service/internal/model"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var tracer = otel.Tracer("github.com/lold2424/LessURL-Service/internal/queue")

// ErrPermanent marks handler failures that will never succeed on redelivery
var ErrPermanent = errors.New("permanent failure")

// ErrNotConfirmed is returned when the broker nacks a publish
var ErrNotConfirmed = errors.New("publish not confirmed by broker")

// confirmTimeout bounds how long Publish waits for the broker's ack
const confirmTimeout = 5 * time.Second

// Permanent wraps err so the consumer drops the delivery instead of requeueing it
func Permanent(err error) error {
	return fmt.Errorf("%w: %w", ErrPermanent, err)
}

// headerCarrier adapts AMQP headers to the OpenTelemetry propagation API
type headerCarrier amqp.Table

func (c headerCarrier) Get(key string) string {
	if v, ok := c[key].(string); ok {
		return v
	}
	return ""
}

func (c headerCarrier) Set(key, value string) { c[key] = value }

func (c headerCarrier) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	return keys
}

var _ propagation.TextMapCarrier = headerCarrier{}

// Option adjusts the declared click queue. Publisher and consumer of one
// queue must be given the same options.
type Option func(amqp.Table)

// WithMaxLength bounds the queue. Once full the broker nacks new publishes,
// so the API falls back to recording clicks itself while the worker catches up.
func WithMaxLength(n int) Option {
	return func(args amqp.Table) {
		if n > 0 {
			args["x-max-length"] = int64(n)
			args["x-overflow"] = "reject-publish"
		}
	}
}

func queueArgs(opts []Option) amqp.Table {
	args := amqp.Table{}
	for _, opt := range opts {
		opt(args)
	}
	if len(args) == 0 {
		return nil
	}
	return args
}

func declare(ch *amqp.Channel, queue string, args amqp.Table) error {
	_, err := ch.QueueDeclare(queue, true, false, false, false, args)
	return err
}

// Publisher sends click events to a durable queue and waits for the
// broker's confirm, so a nil error means the event was accepted. It is safe
// for concurrent use; publishes are serialized on one channel.
type Publisher struct {
	conn  *amqp.Connection
	queue string
	args  amqp.Table

	mu sync.Mutex
	ch *amqp.Channel
}

// NewPublisher opens a confirm-mode channel on conn and declares queue
func NewPublisher(conn *amqp.Connection, queue string, opts ...Option) (*Publisher, error) {
	p := &Publisher{conn: conn, queue: queue, args: queueArgs(opts)}
	ch, err := p.openChannel()
	if err != nil {
		return nil, err
	}
	p.ch = ch
	return p, nil
}

func (p *Publisher) openChannel() (*amqp.Channel, error) {
	ch, err := p.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, err
	}
	if err := declare(ch, p.queue, p.args); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// Publish sends one event as a persistent JSON message and returns once the
// broker has acked it. A nack, a closed channel or a missing confirm is an
// error.
func (p *Publisher) Publish(ctx context.Context, e *model.ClickEvent) error {
	ctx, span := tracer.Start(ctx, "amqp.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", p.queue),
			attribute.String("short_id", e.ShortID),
		),
	)
	defer span.End()

	body, err := json.Marshal(e)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier(headers))

	confirm, err := p.send(ctx, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    e.ID.String(),
		Timestamp:    e.Timestamp,
		Headers:      headers,
		Body:         body,
	})
	if err != nil {
		span.RecordError(err)
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, confirmTimeout)
	defer cancel()
	acked, err := confirm.WaitContext(waitCtx)
	if err != nil {
		err = fmt.Errorf("await publish confirm: %w", err)
		span.RecordError(err)
		return err
	}
	if !acked {
		span.RecordError(ErrNotConfirmed)
		return ErrNotConfirmed
	}
	return nil
}

func (p *Publisher) send(ctx context.Context, msg amqp.Publishing) (*amqp.DeferredConfirmation, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.ch == nil || p.ch.IsClosed() {
		ch, err := p.openChannel()
		if err != nil {
			return nil, err
		}
		p.ch = ch
	}
	return p.ch.PublishWithDeferredConfirmWithContext(ctx, "", p.queue, false, false, msg)
}

// Ping reports whether the broker connection is usable
func (p *Publisher) Ping(ctx context.Context) error {
	if p.conn == nil || p.conn.IsClosed() {
		return amqp.ErrClosed
	}
	return nil
}

// Close closes the publisher's channel
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch == nil {
		return nil
	}
	return p.ch.Close()
}

// Handler processes one decoded click event
type Handler func(ctx context.Context, e *model.ClickEvent) error

// Consumer delivers queued click events to a Handler
type Consumer struct {
	conn     *amqp.Connection
	queue    string
	args     amqp.Table
	prefetch int
	logger   *slog.Logger
}

// NewConsumer creates a consumer for queue. prefetch bounds both the
// unacked deliveries and the handlers running at once.
func NewConsumer(conn *amqp.Connection, queue string, prefetch int, logger *slog.Logger, opts ...Option) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{conn: conn, queue: queue, args: queueArgs(opts), prefetch: prefetch, logger: logger}
}

// Run consumes until ctx is cancelled or the channel closes. Successful
// deliveries are acked; permanent and malformed ones are dropped; other
// failures are requeued.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if err := declare(ch, c.queue, c.args); err != nil {
		return err
	}
	if c.prefetch > 0 {
		if err := ch.Qos(c.prefetch, 0, false); err != nil {
			return err
		}
	}

	deliveries, err := ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	workers := max(1, c.prefetch)
	c.logger.Info("consumer started", slog.String("queue", c.queue), slog.Int("workers", workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case d, ok := <-deliveries:
					if !ok {
						if ctx.Err() != nil {
							return nil
						}
						return amqp.ErrClosed
					}
					c.dispatch(ctx, d, handle)
				}
			}
		})
	}
	return g.Wait()
}

func (c *Consumer) dispatch(ctx context.Context, d amqp.Delivery, handle Handler) {
	ctx = otel.GetTextMapPropagator().Extract(ctx, headerCarrier(d.Headers))
	ctx, span := tracer.Start(ctx, "amqp.consume",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination.name", c.queue),
			attribute.String("messaging.message.id", d.MessageId),
		),
	)
	defer span.End()

	var e model.ClickEvent
	if err := json.Unmarshal(d.Body, &e); err != nil {
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "dropping malformed click event",
			slog.String("message_id", d.MessageId),
			slog.String("error", err.Error()))
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	err := handle(ctx, &e)
	switch {
	case err == nil:
		_ = d.Ack(false)
	case errors.Is(err, ErrPermanent):
		span.RecordError(err)
		c.logger.WarnContext(ctx, "dropping click event",
			slog.String("short_id", e.ShortID),
			slog.String("error", err.Error()))
		_ = d.Nack(false, false)
	default:
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "click event failed, requeueing",
			slog.String("short_id", e.ShortID),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()))
		_ = d.Nack(false, true)
	}
}

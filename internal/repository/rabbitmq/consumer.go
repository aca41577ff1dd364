package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/edupgarcia/bulk-processing/internal/domain/usecase"
)

// ErrDeliveriesClosed is returned by Start when the broker closes the
// delivery channel, usually because the connection dropped.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

type Processor interface {
	Process(ctx context.Context, msg usecase.Message) usecase.Outcome
}

type Consumer struct {
	channel     *amqp.Channel
	queue       string
	tag         string
	processor   Processor
	concurrency int
	grace       time.Duration
	logger      *zap.Logger
}

func NewConsumer(conn *amqp.Connection, topo Topology, p Processor, concurrency int, grace time.Duration, logger *zap.Logger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareTopology(ch, topo); err != nil {
		ch.Close()
		return nil, err
	}

	if concurrency < 1 {
		concurrency = 1
	}
	if err := ch.Qos(concurrency, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("set qos: %w", err)
	}

	return &Consumer{
		channel:     ch,
		queue:       topo.Queue,
		tag:         topo.Queue + "-" + uuid.NewString(),
		processor:   p,
		concurrency: concurrency,
		grace:       grace,
		logger:      logger,
	}, nil
}

// Start consumes until ctx is cancelled or the delivery channel closes.
// On cancellation it stops the broker subscription, waits up to the
// shutdown grace for in-flight handlers, then cancels them.
func (c *Consumer) Start(ctx context.Context) error {
	msgs, err := c.channel.Consume(
		c.queue,
		c.tag,
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	c.logger.Info("Consumer started", zap.String("queue", c.queue), zap.Int("concurrency", c.concurrency))
	return c.serve(ctx, msgs, func() error {
		return c.channel.Cancel(c.tag, false)
	})
}

func (c *Consumer) Close() error {
	return c.channel.Close()
}

func (c *Consumer) serve(ctx context.Context, msgs <-chan amqp.Delivery, stop func() error) error {
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()

	sem := make(chan struct{}, c.concurrency)
	var wg sync.WaitGroup
	var result error

loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case d, ok := <-msgs:
			if !ok {
				result = ErrDeliveriesClosed
				break loop
			}

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				c.settle(d, usecase.OutcomeRequeue)
				break loop
			}

			wg.Add(1)
			go func(d amqp.Delivery) {
				defer wg.Done()
				defer func() { <-sem }()
				c.handle(workCtx, d)
			}(d)
		}
	}

	c.logger.Info("Consumer shutting down", zap.String("queue", c.queue))
	if stop != nil && result == nil {
		if err := stop(); err != nil {
			c.logger.Warn("Failed to cancel subscription", zap.Error(err))
		}
	}
	c.drain(&wg, cancelWork)
	return result
}

func (c *Consumer) drain(wg *sync.WaitGroup, cancelWork context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(c.grace)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		c.logger.Warn("Shutdown grace elapsed, cancelling in-flight messages", zap.Duration("grace", c.grace))
		cancelWork()
		<-done
	}
}

func (c *Consumer) handle(ctx context.Context, d amqp.Delivery) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("Handler panicked", zap.Any("panic", r), zap.String("message_id", d.MessageId))
			c.settle(d, usecase.OutcomeRequeue)
		}
	}()

	outcome := c.processor.Process(ctx, toMessage(d))
	if ctx.Err() != nil && outcome != usecase.OutcomeAck {
		outcome = usecase.OutcomeRequeue
	}
	c.settle(d, outcome)
}

func (c *Consumer) settle(d amqp.Delivery, o usecase.Outcome) {
	if err := settle(d, o); err != nil {
		c.logger.Error("Failed to settle delivery",
			zap.String("message_id", d.MessageId),
			zap.Stringer("outcome", o),
			zap.Error(err),
		)
		return
	}
	c.logger.Debug("Delivery settled", zap.String("message_id", d.MessageId), zap.Stringer("outcome", o))
}

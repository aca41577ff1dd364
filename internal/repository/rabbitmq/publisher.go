package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
)

// RabbitPublisher publishes persistent JSON messages and waits for the
// broker confirm before returning.
type RabbitPublisher struct {
	mu         sync.Mutex
	channel    *amqp.Channel
	exchange   string
	routingKey string
}

func NewRabbitPublisher(conn *amqp.Connection, exchange, routingKey string) (*RabbitPublisher, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open channel: %w", err)
	}

	if err := declareExchange(ch, exchange); err != nil {
		ch.Close()
		return nil, err
	}

	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return &RabbitPublisher{
		channel:    ch,
		exchange:   exchange,
		routingKey: routingKey,
	}, nil
}

func (p *RabbitPublisher) Publish(ctx context.Context, body json.RawMessage) (string, error) {
	id := uuid.NewString()

	p.mu.Lock()
	dc, err := p.channel.PublishWithDeferredConfirmWithContext(ctx,
		p.exchange,
		p.routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    id,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	)
	p.mu.Unlock()
	if err != nil {
		return "", fmt.Errorf("publish to %s/%s: %w", p.exchange, p.routingKey, err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return "", fmt.Errorf("wait for publish confirm: %w", err)
	}
	if !acked {
		return "", fmt.Errorf("publish %s nacked by broker", id)
	}
	return id, nil
}

func (p *RabbitPublisher) Close() error {
	return p.channel.Close()
}

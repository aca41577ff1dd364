package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Topology names the broker objects a stage consumes from.
type Topology struct {
	Exchange   string
	Queue      string
	BindingKey string
}

func (t Topology) DeadLetterExchange() string {
	return t.Exchange + ".dlx"
}

func (t Topology) DeadLetterQueue() string {
	return t.Queue + ".dead"
}

type declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

func declareExchange(ch declarer, exchange string) error {
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", exchange, err)
	}
	return nil
}

// declareTopology declares the pipeline exchange, the work queue bound
// to it, and the dead-letter exchange and queue behind the work queue.
// The dead-letter exchange is shared by every stage on the pipeline
// exchange; dead letters are routed by the work queue name.
func declareTopology(ch declarer, t Topology) error {
	if err := declareExchange(ch, t.Exchange); err != nil {
		return err
	}

	if err := ch.ExchangeDeclare(
		t.DeadLetterExchange(),
		amqp.ExchangeDirect,
		true,
		false,
		false,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.DeadLetterExchange(), err)
	}

	if _, err := ch.QueueDeclare(t.DeadLetterQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.DeadLetterQueue(), err)
	}
	if err := ch.QueueBind(t.DeadLetterQueue(), t.Queue, t.DeadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.DeadLetterQueue(), err)
	}

	_, err := ch.QueueDeclare(
		t.Queue,
		true,
		false,
		false,
		false,
		amqp.Table{
			"x-dead-letter-exchange":    t.DeadLetterExchange(),
			"x-dead-letter-routing-key": t.Queue,
		},
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}

	if err := ch.QueueBind(
		t.Queue,
		t.BindingKey,
		t.Exchange,
		false,
		nil,
	); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	return nil
}

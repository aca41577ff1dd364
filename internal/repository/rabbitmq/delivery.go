package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/edupgarcia/bulk-processing/internal/domain/usecase"
)

const headerDeliveryCount = "x-delivery-count"

// toMessage converts a delivery into the usecase view. String and byte
// headers become attributes; other header values are formatted.
func toMessage(d amqp.Delivery) usecase.Message {
	attrs := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		switch val := v.(type) {
		case string:
			attrs[k] = val
		case []byte:
			attrs[k] = string(val)
		case nil:
		default:
			attrs[k] = fmt.Sprint(val)
		}
	}

	return usecase.Message{
		ID:            d.MessageId,
		Attributes:    attrs,
		Body:          d.Body,
		Redelivered:   d.Redelivered,
		DeliveryCount: deliveryCount(d.Headers),
	}
}

func deliveryCount(h amqp.Table) int {
	switch n := h[headerDeliveryCount].(type) {
	case int:
		return n
	case int16:
		return int(n)
	case int32:
		return int(n)
	case int64:
		return int(n)
	default:
		return 0
	}
}

func settle(d amqp.Delivery, o usecase.Outcome) error {
	switch o {
	case usecase.OutcomeAck:
		return d.Ack(false)
	case usecase.OutcomeDeadLetter:
		return d.Nack(false, false)
	default:
		return d.Nack(false, true)
	}
}

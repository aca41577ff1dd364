package rabbitmq

import (
	"sync"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/edupgarcia/bulk-processing/internal/domain/usecase"
)

type settlement struct {
	tag     uint64
	acked   bool
	requeue bool
}

type fakeAcknowledger struct {
	mu      sync.Mutex
	settled []settlement
}

func (a *fakeAcknowledger) Ack(tag uint64, _ bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, acked: true})
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, _ bool, requeue bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settled = append(a.settled, settlement{tag: tag, requeue: requeue})
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

func (a *fakeAcknowledger) byTag() map[uint64]settlement {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[uint64]settlement, len(a.settled))
	for _, s := range a.settled {
		out[s.tag] = s
	}
	return out
}

func TestToMessage(t *testing.T) {
	d := amqp.Delivery{
		MessageId:   "m-1",
		Redelivered: true,
		Body:        []byte(`{}`),
		Headers: amqp.Table{
			"eventType":        "OBJECT_FINALIZE",
			"bucketId":         []byte("ingest"),
			"generation":       int64(7),
			"empty":            nil,
			"x-delivery-count": int64(3),
		},
	}

	msg := toMessage(d)
	if msg.ID != "m-1" || !msg.Redelivered || string(msg.Body) != "{}" {
		t.Errorf("unexpected message %+v", msg)
	}
	want := map[string]string{
		"eventType":        "OBJECT_FINALIZE",
		"bucketId":         "ingest",
		"generation":       "7",
		"x-delivery-count": "3",
	}
	for k, v := range want {
		if msg.Attributes[k] != v {
			t.Errorf("attribute %s = %q, want %q", k, msg.Attributes[k], v)
		}
	}
	if _, ok := msg.Attributes["empty"]; ok {
		t.Error("nil header should be dropped")
	}
	if msg.DeliveryCount != 3 {
		t.Errorf("DeliveryCount = %d, want 3", msg.DeliveryCount)
	}
}

func TestSettle(t *testing.T) {
	tests := []struct {
		outcome usecase.Outcome
		want    settlement
	}{
		{usecase.OutcomeAck, settlement{tag: 1, acked: true}},
		{usecase.OutcomeRequeue, settlement{tag: 1, requeue: true}},
		{usecase.OutcomeDeadLetter, settlement{tag: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.outcome.String(), func(t *testing.T) {
			ack := &fakeAcknowledger{}
			d := amqp.Delivery{Acknowledger: ack, DeliveryTag: 1}
			if err := settle(d, tt.outcome); err != nil {
				t.Fatalf("settle failed: %v", err)
			}
			if len(ack.settled) != 1 || ack.settled[0] != tt.want {
				t.Errorf("settled = %+v, want %+v", ack.settled, tt.want)
			}
		})
	}
}

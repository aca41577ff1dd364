package rabbitmq

import (
	"errors"
	"sort"
	"testing"

	amqp "github.com/rabbitmq/amqp091-go"
)

type binding struct {
	queue    string
	key      string
	exchange string
}

type recordingDeclarer struct {
	exchanges map[string]string
	queues    map[string]amqp.Table
	bindings  []binding
	failOn    string
}

func newRecordingDeclarer() *recordingDeclarer {
	return &recordingDeclarer{exchanges: map[string]string{}, queues: map[string]amqp.Table{}}
}

func (r *recordingDeclarer) ExchangeDeclare(name, kind string, _, _, _, _ bool, _ amqp.Table) error {
	if name == r.failOn {
		return errors.New("access refused")
	}
	if prev, ok := r.exchanges[name]; ok && prev != kind {
		return errors.New("inequivalent arg 'type' for exchange " + name)
	}
	r.exchanges[name] = kind
	return nil
}

func (r *recordingDeclarer) QueueDeclare(name string, _, _, _, _ bool, args amqp.Table) (amqp.Queue, error) {
	if name == r.failOn {
		return amqp.Queue{}, errors.New("precondition failed")
	}
	r.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (r *recordingDeclarer) QueueBind(name, key, exchange string, _ bool, _ amqp.Table) error {
	r.bindings = append(r.bindings, binding{queue: name, key: key, exchange: exchange})
	return nil
}

// route returns the queues a message published to exchange with key
// reaches. Keys without wildcards only, which is all this package binds.
func (r *recordingDeclarer) route(exchange, key string) []string {
	var out []string
	for _, b := range r.bindings {
		if b.exchange != exchange {
			continue
		}
		if r.exchanges[exchange] == amqp.ExchangeFanout || b.key == key {
			out = append(out, b.queue)
		}
	}
	sort.Strings(out)
	return out
}

// deadLetter returns the queues a message rejected from queue ends up in.
func (r *recordingDeclarer) deadLetter(queue string) []string {
	args := r.queues[queue]
	dlx, _ := args["x-dead-letter-exchange"].(string)
	key, ok := args["x-dead-letter-routing-key"].(string)
	if !ok {
		key = queue
	}
	return r.route(dlx, key)
}

func TestDeclareTopology(t *testing.T) {
	d := newRecordingDeclarer()
	topo := Topology{Exchange: "pipeline", Queue: "data-unpack", BindingKey: "data-unpack"}

	if err := declareTopology(d, topo); err != nil {
		t.Fatalf("declareTopology failed: %v", err)
	}

	if d.exchanges["pipeline"] != amqp.ExchangeTopic || d.exchanges["pipeline.dlx"] != amqp.ExchangeDirect {
		t.Errorf("unexpected exchanges %v", d.exchanges)
	}
	if got := d.queues["data-unpack"]["x-dead-letter-exchange"]; got != "pipeline.dlx" {
		t.Errorf("work queue dead-letter exchange = %v", got)
	}
	if got := d.queues["data-unpack"]["x-dead-letter-routing-key"]; got != "data-unpack" {
		t.Errorf("work queue dead-letter routing key = %v", got)
	}
	if got := d.route("pipeline", "data-unpack"); len(got) != 1 || got[0] != "data-unpack" {
		t.Errorf("pipeline routes data-unpack to %v", got)
	}
	if got := d.deadLetter("data-unpack"); len(got) != 1 || got[0] != "data-unpack.dead" {
		t.Errorf("dead letters from data-unpack reach %v", got)
	}
}

func TestDeadLettersStayWithTheirStage(t *testing.T) {
	d := newRecordingDeclarer()
	stages := []Topology{
		{Exchange: "pipeline", Queue: "data-ingest", BindingKey: "data-ingest"},
		{Exchange: "pipeline", Queue: "data-unpack", BindingKey: "data-unpack"},
	}
	for _, topo := range stages {
		if err := declareTopology(d, topo); err != nil {
			t.Fatalf("declareTopology(%s) failed: %v", topo.Queue, err)
		}
	}

	for _, topo := range stages {
		got := d.deadLetter(topo.Queue)
		if len(got) != 1 || got[0] != topo.DeadLetterQueue() {
			t.Errorf("dead letters from %s reach %v, want only %s", topo.Queue, got, topo.DeadLetterQueue())
		}
	}
}

func TestDeclareTopologyError(t *testing.T) {
	d := newRecordingDeclarer()
	d.failOn = "data-unpack"

	err := declareTopology(d, Topology{Exchange: "pipeline", Queue: "data-unpack", BindingKey: "data-unpack"})
	if err == nil {
		t.Fatal("expected error")
	}
}

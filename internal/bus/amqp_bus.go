// SPDX-License-Identifier: MIT

package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/IsakPar/the-lml-sub003/internal/log"
	"github.com/IsakPar/the-lml-sub003/internal/metrics"
)

const amqpExchange = "seat.events"

// AMQPBus publishes change events to a topic exchange with one routing key
// per (tenant, performance) partition. RabbitMQ preserves ordering per
// routing key on a single channel, which carries the partition-ordering
// guarantee across processes.
type AMQPBus struct {
	conn   *amqp.Connection
	logger zerolog.Logger

	mu      sync.Mutex
	pubCh   *amqp.Channel
	closed  bool
	queueSz int
}

// NewAMQP dials the broker and declares the topic exchange.
func NewAMQP(url string, queueDepth int) (*AMQPBus, error) {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("bus: dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(amqpExchange, "topic", true, false, false, false, nil); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("bus: declare exchange: %w", err)
	}
	return &AMQPBus{
		conn:    conn,
		pubCh:   ch,
		queueSz: queueDepth,
		logger:  log.WithComponent("bus"),
	}, nil
}

func routingKey(tenant, performance string) string {
	return tenant + "." + performance
}

func (b *AMQPBus) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus: encode event: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return fmt.Errorf("bus: closed")
	}
	err = b.pubCh.PublishWithContext(ctx, amqpExchange, routingKey(ev.Tenant, ev.Performance), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("bus: publish: %w", err)
	}
	metrics.IncBusPublished(ev.Kind)
	return nil
}

type amqpSub struct {
	ch     *amqp.Channel
	out    chan Event
	cancel context.CancelFunc
	once   sync.Once
}

func (s *amqpSub) C() <-chan Event { return s.out }

func (s *amqpSub) Close() error {
	var err error
	s.once.Do(func() {
		s.cancel()
		err = s.ch.Close()
	})
	return err
}

// Subscribe declares an exclusive auto-delete queue bound to the partition's
// routing key. Late subscribers receive no backfill; they reconcile through
// one snapshot first.
func (b *AMQPBus) Subscribe(ctx context.Context, tenant, performance string) (Subscription, error) {
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("bus: open channel: %w", err)
	}
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bus: declare queue: %w", err)
	}
	key := routingKey(tenant, performance)
	if err := ch.QueueBind(q.Name, key, amqpExchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bus: bind queue: %w", err)
	}
	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("bus: consume: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &amqpSub{ch: ch, out: make(chan Event, b.queueSz), cancel: cancel}
	metrics.BusSubscribers.Inc()

	go func() {
		defer func() {
			metrics.BusSubscribers.Dec()
			close(sub.out)
		}()
		for {
			select {
			case <-subCtx.Done():
				return
			case d, ok := <-deliveries:
				if !ok {
					return
				}
				var ev Event
				if err := json.Unmarshal(d.Body, &ev); err != nil {
					b.logger.Warn().Err(err).Str("routing_key", key).Msg("dropping undecodable bus message")
					continue
				}
				select {
				case sub.out <- ev:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()
	return sub, nil
}

func (b *AMQPBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}

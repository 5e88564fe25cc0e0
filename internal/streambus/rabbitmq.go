// Package streambus is the StreamingBus: an external ordered append log,
// partitioned by key, that this service is both producer (the Relay) and
// consumer (RankingScorer) of. Built over RabbitMQ the way the teacher's
// messaging layer is, generalized from a single "events" exchange to one
// topic exchange per spec topic (order-events, like-events,
// product-events) so each consumer only sees its own stream.
package streambus

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

// Message is one delivery handed to a consumer handler.
type Message struct {
	Key  string // partitionKey
	Body []byte
	ack  func()
	nack func(requeue bool)
}

func (m Message) Ack()              { m.ack() }
func (m Message) Nack(requeue bool) { m.nack(requeue) }

// Handler processes one message; returning an error nacks with requeue.
type Handler func(ctx context.Context, msg Message) error

type Bus struct {
	url     string
	conn    *amqp.Connection
	channel *amqp.Channel
	log     zerolog.Logger
}

func New(url string, log zerolog.Logger) *Bus {
	return &Bus{url: url, log: log}
}

func (b *Bus) Connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("connect to broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	b.conn = conn
	b.channel = ch
	return nil
}

func (b *Bus) declareTopic(topic string) error {
	if err := b.channel.ExchangeDeclare(topic, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", topic, err)
	}
	return nil
}

// Publish sends value to topic, keyed by key; RabbitMQ's routing key
// carries the partition key so a future sharded deployment can route on
// it, though the default single-queue-per-topic consumer sees everything.
func (b *Bus) Publish(ctx context.Context, topic, key string, value []byte) error {
	if b.channel == nil {
		return fmt.Errorf("streambus channel not initialized")
	}
	if err := b.declareTopic(topic); err != nil {
		return err
	}
	err := b.channel.PublishWithContext(ctx, topic, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		Body:         value,
		DeliveryMode: amqp.Persistent,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", topic, err)
	}
	return nil
}

// Subscribe consumes every message on topic via a single durable queue
// bound with routing key "#" (all partition keys), matching at-least-once
// delivery semantics; the consumer-side IdempotencyLedger is what makes
// redelivery safe (spec §4.2).
func (b *Bus) Subscribe(ctx context.Context, topic, consumerGroup string, handler Handler) error {
	if b.channel == nil {
		return fmt.Errorf("streambus channel not initialized")
	}
	if err := b.declareTopic(topic); err != nil {
		return err
	}
	queueName := fmt.Sprintf("%s.%s", topic, consumerGroup)
	queue, err := b.channel.QueueDeclare(queueName, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queueName, err)
	}
	if err := b.channel.QueueBind(queue.Name, "#", topic, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queueName, err)
	}

	msgs, err := b.channel.Consume(queue.Name, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", queueName, err)
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				msg := Message{
					Key:  d.RoutingKey,
					Body: d.Body,
					ack:  func() { _ = d.Ack(false) },
					nack: func(requeue bool) { _ = d.Nack(false, requeue) },
				}
				if err := handler(ctx, msg); err != nil {
					b.log.Error().Err(err).Str("topic", topic).Msg("handler failed, nacking with requeue")
					msg.Nack(true)
					continue
				}
				msg.Ack()
			}
		}
	}()
	return nil
}

func (b *Bus) Close() error {
	if b.channel != nil {
		_ = b.channel.Close()
	}
	if b.conn != nil {
		return b.conn.Close()
	}
	return nil
}

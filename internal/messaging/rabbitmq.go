package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitConfig struct {
	URL      string
	Exchange string
	Queue    string
	Prefetch int
}

// RabbitClient publishes to a durable topic exchange and consumes from one
// bound queue.
type RabbitClient struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
	queue    string
}

// NewRabbitClient declares the exchange and, when keys are given, the
// queue bound to them.
func NewRabbitClient(cfg RabbitConfig, keys ...string) (*RabbitClient, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	c := &RabbitClient{conn: conn, ch: ch, exchange: cfg.Exchange}
	if len(keys) == 0 {
		return c, nil
	}

	q, err := ch.QueueDeclare(cfg.Queue, true, false, false, false, nil)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("declare queue: %w", err)
	}
	for _, rk := range keys {
		if err := ch.QueueBind(q.Name, rk, cfg.Exchange, false, nil); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("bind %s: %w", rk, err)
		}
	}
	if cfg.Prefetch > 0 {
		if err := ch.Qos(cfg.Prefetch, 0, false); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("set qos: %w", err)
		}
	}
	c.queue = q.Name
	return c, nil
}

// Publish sends data as a persistent JSON message with the subject as
// routing key.
func (c *RabbitClient) Publish(ctx context.Context, subject string, data any) error {
	b, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}
	err = c.ch.PublishWithContext(ctx, c.exchange, subject, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}

// Consume blocks until ctx is done or the channel closes.
func (c *RabbitClient) Consume(ctx context.Context, handler Handler) error {
	if c.queue == "" {
		return fmt.Errorf("rabbitmq client has no bound queue")
	}

	deliveries, err := c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume %s: %w", c.queue, err)
	}

	slog.Info("Consuming queue", "queue", c.queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			if err := handler(ctx, d.Body); err != nil {
				slog.Error("Failed to handle delivery",
					"queue", c.queue, "redelivered", d.Redelivered, "error", err)
				_ = d.Nack(false, shouldRequeue(d.Redelivered))
				continue
			}
			_ = d.Ack(false)
		}
	}
}

// shouldRequeue gives a failed delivery one more attempt.
func shouldRequeue(redelivered bool) bool {
	return !redelivered
}

func (c *RabbitClient) Close() error {
	if c.ch != nil {
		_ = c.ch.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

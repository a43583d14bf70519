package amqp

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	amqplib "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/Sentinel/judge/internal/domain"
	"github.com/Harsh-BH/Sentinel/judge/internal/repository"
)

const (
	// Reconnection parameters
	maxReconnectDelay  = 30 * time.Second
	baseReconnectDelay = 1 * time.Second
)

var _ repository.QueueSource = (*Consumer)(nil)

var errClosed = errors.New("amqp consumer closed")

// Consumer is a QueueSource backed by a RabbitMQ queue. Each delivery is
// acknowledged as soon as it is handed out, matching the pop semantics of the
// Redis list source.
type Consumer struct {
	url    string
	queue  string
	logger *zap.Logger

	mu         sync.Mutex
	conn       *amqplib.Connection
	channel    *amqplib.Channel
	deliveries <-chan amqplib.Delivery
	closed     bool
	closeCh    chan struct{}
}

// NewConsumer connects to RabbitMQ and starts consuming queue.
func NewConsumer(url, queue string, logger *zap.Logger) (*Consumer, error) {
	c := &Consumer{
		url:     url,
		queue:   queue,
		logger:  logger,
		closeCh: make(chan struct{}),
	}

	if err := c.connect(); err != nil {
		return nil, err
	}

	return c, nil
}

// connect establishes the connection, declares the queue and opens a consume
// session with prefetch=1.
func (c *Consumer) connect() error {
	conn, err := amqplib.Dial(c.url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("amqp channel: %w", err)
	}

	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp qos: %w", err)
	}

	_, err = ch.QueueDeclare(
		c.queue,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp queue declare: %w", err)
	}

	deliveries, err := ch.Consume(
		c.queue,
		"",    // auto-generated consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("amqp consume: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.deliveries = deliveries
	c.mu.Unlock()

	c.logger.Info("AMQP consumer started", zap.String("queue", c.queue))
	return nil
}

// Pop returns the next message body. When the broker connection drops it
// reconnects with exponential backoff until ctx is cancelled.
func (c *Consumer) Pop(ctx context.Context) ([]byte, error) {
	for {
		c.mu.Lock()
		deliveries := c.deliveries
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-c.closeCh:
			return nil, errClosed
		case delivery, ok := <-deliveries:
			if !ok {
				c.logger.Warn("AMQP consumer lost connection, reconnecting...")
				if err := c.reconnect(ctx); err != nil {
					return nil, err
				}
				continue
			}
			if err := delivery.Ack(false); err != nil {
				return nil, &domain.QueueError{Queue: c.queue, Err: fmt.Errorf("ack: %w", err)}
			}
			return delivery.Body, nil
		}
	}
}

func (c *Consumer) reconnect(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		delay := reconnectDelay(attempt)
		c.logger.Info("Reconnect attempt",
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-c.closeCh:
			timer.Stop()
			return errClosed
		case <-timer.C:
		}

		if err := c.connect(); err != nil {
			c.logger.Error("Reconnect failed", zap.Error(err))
			continue
		}

		c.logger.Info("Reconnected to RabbitMQ")
		return nil
	}
}

// Close gracefully shuts down the consumer.
func (c *Consumer) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)

	var firstErr error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			firstErr = err
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func reconnectDelay(attempt int) time.Duration {
	return time.Duration(math.Min(
		float64(baseReconnectDelay)*math.Pow(2, float64(attempt)),
		float64(maxReconnectDelay),
	))
}

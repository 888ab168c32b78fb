package queue

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AMQPConfig RabbitMQ connection configuration
type AMQPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string // default "/"
}

// AMQPMessageQueue RabbitMQ-backed MessageQueue. Topics map to durable queues.
type AMQPMessageQueue struct {
	conn *amqp.Connection
	ch   *amqp.Channel

	mu         sync.Mutex
	deliveries map[string]<-chan amqp.Delivery
	closed     bool
}

// NewAMQPMessageQueue dials RabbitMQ and opens a channel with publisher confirms
func NewAMQPMessageQueue(cfg AMQPConfig) (*AMQPMessageQueue, error) {
	if cfg.VHost == "" {
		cfg.VHost = "/"
	}
	url := fmt.Sprintf("amqp://%s:%s@%s:%d/%s",
		cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.VHost)

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	return &AMQPMessageQueue{
		conn:       conn,
		ch:         ch,
		deliveries: make(map[string]<-chan amqp.Delivery),
	}, nil
}

func (q *AMQPMessageQueue) declare(topic string) error {
	_, err := q.ch.QueueDeclare(
		topic,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,
	)
	return err
}

// Publish publishes a message to a topic
func (q *AMQPMessageQueue) Publish(ctx context.Context, topic string, message []byte) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrQueueClosed
	}
	if err := q.declare(topic); err != nil {
		return err
	}

	return q.ch.PublishWithContext(ctx,
		"",    // default exchange
		topic, // routing key == queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         message,
		},
	)
}

// Consume consumes a message from a topic
func (q *AMQPMessageQueue) Consume(ctx context.Context, topic string) ([]byte, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrQueueClosed
	}

	deliveries, ok := q.deliveries[topic]
	if !ok {
		if err := q.declare(topic); err != nil {
			q.mu.Unlock()
			return nil, err
		}
		var err error
		deliveries, err = q.ch.Consume(
			topic,
			"",    // consumer tag
			false, // manual ack
			false, // exclusive
			false, // no-local
			false, // no-wait
			nil,
		)
		if err != nil {
			q.mu.Unlock()
			return nil, err
		}
		q.deliveries[topic] = deliveries
	}
	q.mu.Unlock()

	select {
	case d, ok := <-deliveries:
		if !ok {
			return nil, ErrQueueClosed
		}
		if err := d.Ack(false); err != nil {
			return nil, err
		}
		return d.Body, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close closes the channel and connection
func (q *AMQPMessageQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true

	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}

// Health reports whether the underlying connection is alive
func (q *AMQPMessageQueue) Health() error {
	if q.conn == nil || q.conn.IsClosed() {
		return fmt.Errorf("rabbitmq connection is closed")
	}
	return nil
}

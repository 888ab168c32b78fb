package queue

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueClosed queue is closed
var ErrQueueClosed = errors.New("queue is closed")

// MessageQueue message queue interface
type MessageQueue interface {
	// Publish publishes a message to a topic
	Publish(ctx context.Context, topic string, message []byte) error
	// Consume consumes a message from a topic, blocking until one is available
	Consume(ctx context.Context, topic string) ([]byte, error)
	// Close closes the queue
	Close() error
}

// MemoryMessageQueue in-memory message queue implementation
type MemoryMessageQueue struct {
	queues map[string]chan []byte
	mu     sync.RWMutex
	done   chan struct{}
	closed bool
}

// NewMemoryMessageQueue creates a new in-memory message queue
func NewMemoryMessageQueue() *MemoryMessageQueue {
	return &MemoryMessageQueue{
		queues: make(map[string]chan []byte),
		done:   make(chan struct{}),
	}
}

func (q *MemoryMessageQueue) topic(name string) (chan []byte, error) {
	q.mu.RLock()
	if q.closed {
		q.mu.RUnlock()
		return nil, ErrQueueClosed
	}
	ch, ok := q.queues[name]
	q.mu.RUnlock()
	if ok {
		return ch, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, ErrQueueClosed
	}
	if ch, ok = q.queues[name]; !ok {
		ch = make(chan []byte, 1000)
		q.queues[name] = ch
	}
	return ch, nil
}

// Publish publishes a message to a topic
func (q *MemoryMessageQueue) Publish(ctx context.Context, topic string, message []byte) error {
	ch, err := q.topic(topic)
	if err != nil {
		return err
	}

	// Block when the buffer is full; a background hand-off would break
	// per-topic FIFO ordering and could outlive Close.
	select {
	case ch <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.done:
		return ErrQueueClosed
	}
}

// Consume consumes a message from a topic
func (q *MemoryMessageQueue) Consume(ctx context.Context, topic string) ([]byte, error) {
	ch, err := q.topic(topic)
	if err != nil {
		return nil, err
	}

	select {
	case message := <-ch:
		return message, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		return nil, ErrQueueClosed
	}
}

// Close closes the queue
func (q *MemoryMessageQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	// Topic channels are never closed; blocked publishers and consumers
	// are released through done instead.
	close(q.done)
	return nil
}

package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryQueuePublishConsume(t *testing.T) {
	q := NewMemoryMessageQueue()
	defer q.Close()

	ctx := context.Background()
	if err := q.Publish(ctx, "orders", []byte("hello")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	msg, err := q.Consume(ctx, "orders")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if string(msg) != "hello" {
		t.Errorf("Expected hello, got %s", msg)
	}
}

func TestMemoryQueueTopicsAreIsolated(t *testing.T) {
	q := NewMemoryMessageQueue()
	defer q.Close()

	ctx := context.Background()
	q.Publish(ctx, "a", []byte("for-a"))
	q.Publish(ctx, "b", []byte("for-b"))

	msg, err := q.Consume(ctx, "b")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if string(msg) != "for-b" {
		t.Errorf("Expected for-b, got %s", msg)
	}
}

func TestMemoryQueueConsumeRespectsContext(t *testing.T) {
	q := NewMemoryMessageQueue()
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Consume(ctx, "empty")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected deadline exceeded, got %v", err)
	}
}

func TestMemoryQueueClosed(t *testing.T) {
	q := NewMemoryMessageQueue()
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// Close is idempotent
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	ctx := context.Background()
	if err := q.Publish(ctx, "orders", []byte("x")); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on publish, got %v", err)
	}
	if _, err := q.Consume(ctx, "orders"); !errors.Is(err, ErrQueueClosed) {
		t.Errorf("Expected ErrQueueClosed on consume, got %v", err)
	}
}

func TestMemoryQueueOrderingUnderBufferPressure(t *testing.T) {
	q := NewMemoryMessageQueue()
	defer q.Close()

	const total = 1500 // beyond the per-topic buffer, so Publish must block
	go func() {
		ctx := context.Background()
		for i := 0; i < total; i++ {
			if err := q.Publish(ctx, "pressure", []byte{byte(i), byte(i >> 8)}); err != nil {
				return
			}
		}
	}()

	ctx := context.Background()
	for i := 0; i < total; i++ {
		msg, err := q.Consume(ctx, "pressure")
		if err != nil {
			t.Fatalf("Consume %d: %v", i, err)
		}
		got := int(msg[0]) | int(msg[1])<<8
		if got != i {
			t.Fatalf("Expected message %d, got %d", i, got)
		}
	}
}

func TestMemoryQueueBlockedPublishReleasedByClose(t *testing.T) {
	q := NewMemoryMessageQueue()

	ctx := context.Background()
	var fillErr error
	for i := 0; i < 1000; i++ {
		if fillErr = q.Publish(ctx, "full", []byte("x")); fillErr != nil {
			t.Fatalf("Publish %d: %v", i, fillErr)
		}
	}

	result := make(chan error, 1)
	go func() {
		result <- q.Publish(ctx, "full", []byte("overflow"))
	}()

	time.Sleep(10 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	select {
	case err := <-result:
		if !errors.Is(err, ErrQueueClosed) {
			t.Errorf("Expected ErrQueueClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Blocked publish was not released by Close")
	}
}

func TestMemoryQueueOrdering(t *testing.T) {
	q := NewMemoryMessageQueue()
	defer q.Close()

	ctx := context.Background()
	for i := byte('a'); i <= 'e'; i++ {
		if err := q.Publish(ctx, "seq", []byte{i}); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}
	for i := byte('a'); i <= 'e'; i++ {
		msg, err := q.Consume(ctx, "seq")
		if err != nil {
			t.Fatalf("Consume: %v", err)
		}
		if msg[0] != i {
			t.Errorf("Expected %c, got %c", i, msg[0])
		}
	}
}

// Package consumer drains the dispatch topic and drives the notification
// engine. Consumption is decoupled from the order-service write path so a
// slow provider never stalls a status update.
package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"bazaar/internal/model"
	"bazaar/internal/repository"
	"bazaar/internal/service/notify"
	"bazaar/pkg/log"
	"bazaar/pkg/queue"
)

// NotifyConsumer dispatch message consumer
type NotifyConsumer struct {
	engine       *notify.Engine
	orderRepo    repository.OrderRepository
	messageQueue queue.MessageQueue
	topic        string
	stopCh       chan struct{}
}

// NewNotifyConsumer creates a dispatch consumer reading from topic
func NewNotifyConsumer(
	engine *notify.Engine,
	orderRepo repository.OrderRepository,
	messageQueue queue.MessageQueue,
	topic string,
) *NotifyConsumer {
	return &NotifyConsumer{
		engine:       engine,
		orderRepo:    orderRepo,
		messageQueue: messageQueue,
		topic:        topic,
		stopCh:       make(chan struct{}),
	}
}

// Start starts the consumer loop
func (c *NotifyConsumer) Start(ctx context.Context) {
	log.Info("Starting notify consumer")

	go func() {
		for {
			select {
			case <-c.stopCh:
				log.Info("Notify consumer stopped")
				return
			case <-ctx.Done():
				log.Info("Notify consumer context cancelled")
				return
			default:
				consumeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				data, err := c.messageQueue.Consume(consumeCtx, c.topic)
				cancel()

				if err != nil {
					if errors.Is(err, context.DeadlineExceeded) {
						continue
					}
					if errors.Is(err, queue.ErrQueueClosed) {
						log.Info("Dispatch queue closed, notify consumer exiting")
						return
					}
					log.WithError(err).Error("Failed to consume dispatch message")
					time.Sleep(time.Second)
					continue
				}

				if err := c.handle(ctx, data); err != nil {
					log.WithError(err).Error("Failed to process dispatch message")
				}
			}
		}
	}()
}

// Stop stops the consumer
func (c *NotifyConsumer) Stop() {
	close(c.stopCh)
}

func (c *NotifyConsumer) handle(ctx context.Context, data []byte) error {
	var msg model.DispatchMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		// malformed payloads are dropped, not retried
		log.WithError(err).Warn("Dropping malformed dispatch message")
		return nil
	}

	order, err := c.orderRepo.GetByOrderNo(ctx, msg.OrderNo)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			log.WithFields(map[string]interface{}{
				"order_no": msg.OrderNo,
				"event":    msg.EventKey,
			}).Warn("Dispatch message references unknown order, dropping")
			return nil
		}
		return err
	}

	return c.engine.NotifyOnStepActivation(ctx, order, &msg)
}

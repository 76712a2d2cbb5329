package consumers

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"retail-order-service/config"
	"retail-order-service/errs"
	"retail-order-service/models"
	"retail-order-service/services"
)

// OrderConsumer reacts to order lifecycle events. Its one real job is the
// delayed payment check: an order still pending when the check fires is
// treated as abandoned and cancelled through the engine's compensating
// delete, which restores the reserved stock.
type OrderConsumer struct {
	orders *services.OrderService
	cfg    *config.Config
	log    *zap.Logger
}

func NewOrderConsumer(orders *services.OrderService, cfg *config.Config, log *zap.Logger) *OrderConsumer {
	return &OrderConsumer{orders: orders, cfg: cfg, log: log}
}

// Start registers the queue consumers. Message loops run on their own
// goroutines until the channel closes.
func (c *OrderConsumer) Start(ch *amqp.Channel) error {
	msgs, err := ch.Consume(
		c.cfg.OrderQueue,
		"retail-order-service", // consumer tag
		false,                  // auto-ack
		false,                  // exclusive
		false,                  // no-local
		false,                  // no-wait
		nil,
	)
	if err != nil {
		return err
	}
	go func() {
		for msg := range msgs {
			c.processOrderMessage(msg)
		}
	}()

	dlqMsgs, err := ch.Consume(
		c.cfg.DeadLetterQueue,
		"retail-order-service-dlq", // consumer tag
		false,                      // auto-ack
		false,                      // exclusive
		false,                      // no-local
		false,                      // no-wait
		nil,
	)
	if err != nil {
		c.log.Warn("failed to register dead letter consumer", zap.Error(err))
		return nil
	}
	go func() {
		for msg := range dlqMsgs {
			c.processDeadLetterMessage(msg)
		}
	}()

	return nil
}

func (c *OrderConsumer) processOrderMessage(msg amqp.Delivery) {
	var event models.OrderEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		c.log.Error("invalid order event payload", zap.ByteString("body", msg.Body), zap.Error(err))
		_ = msg.Nack(false, false) // reject without requeue, lands in DLQ
		return
	}

	c.log.Debug("processing order event",
		zap.Int64("order_id", event.OrderID), zap.String("type", event.Type))

	switch event.Type {
	case "created", "status_updated", "deleted":
		// Notification-only events; other services consume these too.
	case "payment_check":
		c.handlePaymentCheck(event.OrderID)
	default:
		c.log.Warn("unknown order event type", zap.String("type", event.Type))
	}

	_ = msg.Ack(false)
}

func (c *OrderConsumer) processDeadLetterMessage(msg amqp.Delivery) {
	c.log.Warn("received dead letter", zap.ByteString("body", msg.Body))
	_ = msg.Ack(false)
}

func (c *OrderConsumer) handlePaymentCheck(orderID int64) {
	ctx := context.Background()

	order, err := c.orders.GetOrder(ctx, orderID)
	if err != nil {
		if errs.KindOf(err) == errs.NotFound {
			// Already deleted; nothing to cancel.
			return
		}
		c.log.Error("payment check lookup failed", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	if order.Status != models.StatusPending {
		return
	}

	if err := c.orders.DeleteOrder(ctx, orderID); err != nil {
		c.log.Error("failed to cancel unpaid order", zap.Int64("order_id", orderID), zap.Error(err))
		return
	}
	c.log.Info("cancelled unpaid order and restored stock", zap.Int64("order_id", orderID))
}

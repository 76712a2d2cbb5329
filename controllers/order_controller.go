package controllers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"retail-order-service/middlewares"
	"retail-order-service/models"
	"retail-order-service/rabbitmq"
	"retail-order-service/services"
)

type OrderController struct {
	orders *services.OrderService
	mq     *rabbitmq.RabbitMQ
	log    *zap.Logger

	paymentCheckDelay time.Duration
}

func NewOrderController(orders *services.OrderService, mq *rabbitmq.RabbitMQ,
	paymentCheckDelay time.Duration, log *zap.Logger) *OrderController {
	return &OrderController{orders: orders, mq: mq, paymentCheckDelay: paymentCheckDelay, log: log}
}

type createOrderRequest struct {
	CustomerName string   `json:"customer_name" binding:"required"`
	Phone        string   `json:"phone" binding:"required"`
	Address      string   `json:"address"`
	Items        []string `json:"items" binding:"required"`
}

func (oc *OrderController) Create(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("create", success)
	}()

	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conf, err := oc.orders.CreateOrder(c.Request.Context(), req.CustomerName, req.Phone, req.Address, req.Items)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, conf)

	// Events go out only after the transaction committed.
	if oc.mq != nil {
		priority := 5
		if conf.TotalAmount.IntPart() > 1000 {
			priority = 9
		}
		event := models.OrderEvent{OrderID: conf.OrderID, Type: "created", Status: models.StatusPending, Occurred: time.Now()}
		if err := oc.mq.PublishOrderEvent(event, priority); err != nil {
			oc.log.Warn("failed to publish order created event", zap.Error(err))
		}

		check := models.OrderEvent{OrderID: conf.OrderID, Type: "payment_check", Occurred: time.Now()}
		if err := oc.mq.PublishDelayedEvent(check, oc.paymentCheckDelay); err != nil {
			oc.log.Warn("failed to publish delayed payment check", zap.Error(err))
		}
	}
}

func (oc *OrderController) List(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("list", success)
	}()

	limit := queryLimit(c, 50)
	summaries, err := oc.orders.ListOrders(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

type updateStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (oc *OrderController) UpdateStatus(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("update_status", success)
	}()

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := oc.orders.UpdateOrderStatus(c.Request.Context(), orderID, req.Status); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order status updated", "order_id": orderID, "status": req.Status})

	if oc.mq != nil {
		event := models.OrderEvent{OrderID: orderID, Type: "status_updated", Status: req.Status, Occurred: time.Now()}
		if err := oc.mq.PublishOrderEvent(event, 5); err != nil {
			oc.log.Warn("failed to publish status update event", zap.Error(err))
		}
	}
}

func (oc *OrderController) Delete(c *gin.Context) {
	defer func() {
		success := c.Writer.Status() >= 200 && c.Writer.Status() < 300
		middlewares.RecordOrderOperation("delete", success)
	}()

	orderID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid order ID"})
		return
	}

	if err := oc.orders.DeleteOrder(c.Request.Context(), orderID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Order deleted, stock restored", "order_id": orderID})

	if oc.mq != nil {
		event := models.OrderEvent{OrderID: orderID, Type: "deleted", Occurred: time.Now()}
		if err := oc.mq.PublishOrderEvent(event, 8); err != nil {
			oc.log.Warn("failed to publish order deleted event", zap.Error(err))
		}
	}
}

func queryLimit(c *gin.Context, fallback int) int {
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

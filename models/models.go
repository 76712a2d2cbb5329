package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Order status labels. The engine enforces the value set, not transitions.
const (
	StatusPending   = "pending"
	StatusShipped   = "shipped"
	StatusCompleted = "completed"
)

func ValidStatus(s string) bool {
	return s == StatusPending || s == StatusShipped || s == StatusCompleted
}

type Customer struct {
	ID      int64     `json:"customer_id"`
	Name    string    `json:"name"`
	Phone   string    `json:"phone"`
	Address string    `json:"address"`
	RegDate time.Time `json:"reg_date"`
}

type Product struct {
	ID    int64           `json:"product_id"`
	Name  string          `json:"name"`
	Code  string          `json:"code"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
	// Comma-joined category names from the category join; empty when the
	// product is uncategorized.
	Categories string `json:"categories"`
}

type Order struct {
	ID          int64           `json:"order_id"`
	Code        string          `json:"order_code"`
	CustomerID  int64           `json:"customer_id"`
	CreateTime  time.Time       `json:"create_time"`
	Status      string          `json:"status"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderItem struct {
	ID        int64 `json:"item_id"`
	OrderID   int64 `json:"order_id"`
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
	// Price captured at order time; immutable even if the product price
	// changes later.
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderSummary is the denormalized list view joining customer and products.
type OrderSummary struct {
	OrderID       int64           `json:"order_id"`
	OrderCode     string          `json:"order_code"`
	CreateTime    time.Time       `json:"create_time"`
	Status        string          `json:"status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	CustomerID    int64           `json:"customer_id"`
	CustomerName  string          `json:"customer_name"`
	CustomerPhone string          `json:"customer_phone"`
	ProductNames  string          `json:"product_names"`
	ItemCount     int             `json:"item_count"`
}

// CustomerSummary carries the per-customer order aggregates of the list view.
type CustomerSummary struct {
	Customer
	OrderCount int             `json:"order_count"`
	TotalSpent decimal.Decimal `json:"total_spent"`
}

type OrderStats struct {
	TotalOrders     int             `json:"total_orders"`
	TotalSpent      decimal.Decimal `json:"total_spent"`
	AvgOrderValue   decimal.Decimal `json:"avg_order_value"`
	LastOrderDate   *time.Time      `json:"last_order_date"`
	CompletedOrders int             `json:"completed_orders"`
	PendingOrders   int             `json:"pending_orders"`
	ShippedOrders   int             `json:"shipped_orders"`
}

type CustomerDetail struct {
	Customer
	Stats        OrderStats `json:"order_stats"`
	RecentOrders []Order    `json:"recent_orders"`
}

// OrderConfirmation is what createOrder hands back to collaborators.
type OrderConfirmation struct {
	OrderID     int64           `json:"order_id"`
	OrderCode   string          `json:"order_code"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

type OrderEvent struct {
	OrderID  int64     `json:"order_id"`
	Type     string    `json:"type"` // created, status_updated, deleted, payment_check
	Status   string    `json:"status,omitempty"`
	Occurred time.Time `json:"occurred"`
}

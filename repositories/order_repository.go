package repositories

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"retail-order-service/database"
	"retail-order-service/errs"
	"retail-order-service/models"
)

type OrderRepository struct {
	gw *database.Gateway
}

func NewOrderRepository(gw *database.Gateway) *OrderRepository {
	return &OrderRepository{gw: gw}
}

func (r *OrderRepository) Insert(ctx context.Context, tx *sql.Tx, code string, customerID int64, status string, total decimal.Decimal, createTime time.Time) (int64, error) {
	return r.gw.ExecuteReturningID(ctx, tx,
		"INSERT INTO shop_order (order_code, customer_id, status, total_amount, create_time) VALUES (?, ?, ?, ?, ?)",
		code, customerID, status, total, createTime)
}

// InsertItems bulk-inserts the line items of one order.
func (r *OrderRepository) InsertItems(ctx context.Context, tx *sql.Tx, orderID int64, items []models.OrderItem) error {
	paramSets := make([][]any, 0, len(items))
	for _, item := range items {
		paramSets = append(paramSets, []any{orderID, item.ProductID, item.Quantity, item.UnitPrice})
	}
	_, err := r.gw.ExecuteBatch(ctx, tx,
		"INSERT INTO shop_order_item (order_id, product_id, quantity, unit_price) VALUES (?, ?, ?, ?)",
		paramSets)
	return err
}

func (r *OrderRepository) Get(ctx context.Context, tx *sql.Tx, id int64) (*models.Order, error) {
	var o models.Order
	found, err := r.gw.QueryOne(ctx, tx,
		[]any{&o.ID, &o.Code, &o.CustomerID, &o.CreateTime, &o.Status, &o.TotalAmount},
		"SELECT order_id, order_code, customer_id, create_time, status, total_amount FROM shop_order WHERE order_id = ?",
		id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.E(errs.NotFound, "order %d not found", id)
	}
	return &o, nil
}

func (r *OrderRepository) Items(ctx context.Context, tx *sql.Tx, orderID int64) ([]models.OrderItem, error) {
	var items []models.OrderItem
	err := r.gw.Query(ctx, tx, func(rows *sql.Rows) error {
		item := models.OrderItem{OrderID: orderID}
		if err := rows.Scan(&item.ID, &item.ProductID, &item.Quantity, &item.UnitPrice); err != nil {
			return err
		}
		items = append(items, item)
		return nil
	}, "SELECT item_id, product_id, quantity, unit_price FROM shop_order_item WHERE order_id = ?", orderID)
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *OrderRepository) DeleteItems(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error) {
	return r.gw.Execute(ctx, tx, "DELETE FROM shop_order_item WHERE order_id = ?", orderID)
}

func (r *OrderRepository) Delete(ctx context.Context, tx *sql.Tx, orderID int64) (int64, error) {
	return r.gw.Execute(ctx, tx, "DELETE FROM shop_order WHERE order_id = ?", orderID)
}

func (r *OrderRepository) UpdateStatus(ctx context.Context, id int64, status string) (int64, error) {
	return r.gw.Execute(ctx, nil,
		"UPDATE shop_order SET status = ? WHERE order_id = ?", status, id)
}

// List returns the denormalized order view: customer fields plus the
// concatenated product names of each order's items.
func (r *OrderRepository) List(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	query := `
		SELECT o.order_id, o.order_code, o.create_time, o.status, o.total_amount,
		       c.customer_id, c.name AS cust_name, c.phone AS cust_phone,
		       COALESCE(GROUP_CONCAT(DISTINCT p.name), '') AS prod_names,
		       COUNT(oi.item_id) AS item_count
		FROM shop_order o
		LEFT JOIN customer c ON o.customer_id = c.customer_id
		LEFT JOIN shop_order_item oi ON o.order_id = oi.order_id
		LEFT JOIN product p ON oi.product_id = p.product_id
		GROUP BY o.order_id, o.order_code, o.create_time, o.status, o.total_amount,
		         c.customer_id, c.name, c.phone
		ORDER BY o.create_time DESC
		LIMIT ?`

	summaries := make([]models.OrderSummary, 0, limit)
	err := r.gw.Query(ctx, nil, func(rows *sql.Rows) error {
		var s models.OrderSummary
		if err := rows.Scan(&s.OrderID, &s.OrderCode, &s.CreateTime, &s.Status, &s.TotalAmount,
			&s.CustomerID, &s.CustomerName, &s.CustomerPhone, &s.ProductNames, &s.ItemCount); err != nil {
			return err
		}
		summaries = append(summaries, s)
		return nil
	}, query, limit)
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

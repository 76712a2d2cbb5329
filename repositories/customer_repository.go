package repositories

import (
	"context"
	"database/sql"

	"retail-order-service/database"
	"retail-order-service/errs"
	"retail-order-service/models"
)

type CustomerRepository struct {
	gw *database.Gateway
}

func NewCustomerRepository(gw *database.Gateway) *CustomerRepository {
	return &CustomerRepository{gw: gw}
}

const customerSelect = "SELECT customer_id, name, phone, address, reg_date FROM customer"

// FindByPhone returns the customer registered under phone, or nil when the
// number is unknown.
func (r *CustomerRepository) FindByPhone(ctx context.Context, tx *sql.Tx, phone string) (*models.Customer, error) {
	return r.findByPhone(ctx, tx, phone, false)
}

// FindByPhoneLocked is the current-read variant: it sees rows committed by
// other transactions after tx began and locks the row it finds. The order
// engine uses it to recover when a concurrent order registered the same
// phone first.
func (r *CustomerRepository) FindByPhoneLocked(ctx context.Context, tx *sql.Tx, phone string) (*models.Customer, error) {
	return r.findByPhone(ctx, tx, phone, true)
}

func (r *CustomerRepository) findByPhone(ctx context.Context, tx *sql.Tx, phone string, locked bool) (*models.Customer, error) {
	query := customerSelect + " WHERE phone = ?"
	if locked {
		query += " FOR UPDATE"
	}
	var c models.Customer
	found, err := r.gw.QueryOne(ctx, tx,
		[]any{&c.ID, &c.Name, &c.Phone, &c.Address, &c.RegDate}, query, phone)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &c, nil
}

// Create inserts a customer and returns the generated id. A concurrent
// registration of the same phone surfaces as Conflict via the unique key on
// phone — the storage layer, not the preceding lookup, is the arbiter.
func (r *CustomerRepository) Create(ctx context.Context, tx *sql.Tx, name, phone, address string) (int64, error) {
	return r.gw.ExecuteReturningID(ctx, tx,
		"INSERT INTO customer (name, phone, address, reg_date) VALUES (?, ?, ?, CURDATE())",
		name, phone, address)
}

func (r *CustomerRepository) List(ctx context.Context, limit int) ([]models.CustomerSummary, error) {
	query := `
		SELECT c.customer_id, c.name, c.phone, c.address, c.reg_date,
		       (SELECT COUNT(*) FROM shop_order o WHERE o.customer_id = c.customer_id) AS order_count,
		       (SELECT COALESCE(SUM(total_amount), 0) FROM shop_order o WHERE o.customer_id = c.customer_id) AS total_spent
		FROM customer c
		ORDER BY c.reg_date DESC
		LIMIT ?`

	customers := make([]models.CustomerSummary, 0, limit)
	err := r.gw.Query(ctx, nil, func(rows *sql.Rows) error {
		var c models.CustomerSummary
		if err := rows.Scan(&c.ID, &c.Name, &c.Phone, &c.Address, &c.RegDate,
			&c.OrderCount, &c.TotalSpent); err != nil {
			return err
		}
		customers = append(customers, c)
		return nil
	}, query, limit)
	if err != nil {
		return nil, err
	}
	return customers, nil
}

// Detail aggregates a customer's order statistics and ten most recent orders.
func (r *CustomerRepository) Detail(ctx context.Context, id int64) (*models.CustomerDetail, error) {
	var d models.CustomerDetail
	found, err := r.gw.QueryOne(ctx, nil,
		[]any{&d.ID, &d.Name, &d.Phone, &d.Address, &d.RegDate},
		customerSelect+" WHERE customer_id = ?", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.E(errs.NotFound, "customer %d not found", id)
	}

	statsQuery := `
		SELECT COUNT(*),
		       COALESCE(SUM(total_amount), 0),
		       COALESCE(AVG(total_amount), 0),
		       MAX(create_time),
		       SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'pending' THEN 1 ELSE 0 END),
		       SUM(CASE WHEN status = 'shipped' THEN 1 ELSE 0 END)
		FROM shop_order
		WHERE customer_id = ?`
	var completed, pending, shipped sql.NullInt64
	_, err = r.gw.QueryOne(ctx, nil,
		[]any{&d.Stats.TotalOrders, &d.Stats.TotalSpent, &d.Stats.AvgOrderValue,
			&d.Stats.LastOrderDate, &completed, &pending, &shipped},
		statsQuery, id)
	if err != nil {
		return nil, err
	}
	d.Stats.CompletedOrders = int(completed.Int64)
	d.Stats.PendingOrders = int(pending.Int64)
	d.Stats.ShippedOrders = int(shipped.Int64)

	recentQuery := `
		SELECT order_id, order_code, total_amount, status, create_time
		FROM shop_order
		WHERE customer_id = ?
		ORDER BY create_time DESC
		LIMIT 10`
	d.RecentOrders = make([]models.Order, 0, 10)
	err = r.gw.Query(ctx, nil, func(rows *sql.Rows) error {
		o := models.Order{CustomerID: id}
		if err := rows.Scan(&o.ID, &o.Code, &o.TotalAmount, &o.Status, &o.CreateTime); err != nil {
			return err
		}
		d.RecentOrders = append(d.RecentOrders, o)
		return nil
	}, recentQuery, id)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// Update rewrites a customer's contact fields, rejecting a phone number
// already held by a different customer.
func (r *CustomerRepository) Update(ctx context.Context, id int64, name, phone, address string) error {
	var existingID int64
	found, err := r.gw.QueryOne(ctx, nil, []any{&existingID},
		"SELECT customer_id FROM customer WHERE customer_id = ?", id)
	if err != nil {
		return err
	}
	if !found {
		return errs.E(errs.NotFound, "customer %d not found", id)
	}

	var otherID int64
	taken, err := r.gw.QueryOne(ctx, nil, []any{&otherID},
		"SELECT customer_id FROM customer WHERE phone = ? AND customer_id != ?", phone, id)
	if err != nil {
		return err
	}
	if taken {
		return errs.E(errs.Conflict, "phone %s already registered to another customer", phone)
	}

	_, err = r.gw.Execute(ctx, nil,
		"UPDATE customer SET name = ?, phone = ?, address = ? WHERE customer_id = ?",
		name, phone, address, id)
	return err
}

// Delete removes a customer, refusing while orders still reference the row.
// The FK constraint is the backstop if a racing order slips past the count.
func (r *CustomerRepository) Delete(ctx context.Context, id int64) error {
	var orderCount int
	found, err := r.gw.QueryOne(ctx, nil, []any{&orderCount},
		"SELECT COUNT(*) FROM shop_order WHERE customer_id = ?", id)
	if err != nil {
		return err
	}
	if found && orderCount > 0 {
		return errs.E(errs.Conflict, "customer %d has %d orders and cannot be deleted", id, orderCount)
	}

	affected, err := r.gw.Execute(ctx, nil,
		"DELETE FROM customer WHERE customer_id = ?", id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.E(errs.NotFound, "customer %d not found", id)
	}
	return nil
}

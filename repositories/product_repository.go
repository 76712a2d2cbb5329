package repositories

import (
	"context"
	"database/sql"
	"sort"
	"strings"

	"retail-order-service/database"
	"retail-order-service/errs"
	"retail-order-service/models"
)

// ProductRepository reads and mutates product rows. It holds no retry logic:
// contended decrements are the stock service's problem, and multi-row lock
// discipline belongs to the order engine.
type ProductRepository struct {
	gw *database.Gateway
}

func NewProductRepository(gw *database.Gateway) *ProductRepository {
	return &ProductRepository{gw: gw}
}

const productSelect = `
	SELECT p.product_id, p.name, p.code, p.price, p.stock,
	       COALESCE(GROUP_CONCAT(c.name), '') AS categories
	FROM product p
	LEFT JOIN product_category pc ON p.product_id = pc.product_id
	LEFT JOIN category c ON pc.category_id = c.category_id`

// Get returns a product with its category names joined in.
func (r *ProductRepository) Get(ctx context.Context, tx *sql.Tx, id int64) (*models.Product, error) {
	var p models.Product
	found, err := r.gw.QueryOne(ctx, tx,
		[]any{&p.ID, &p.Name, &p.Code, &p.Price, &p.Stock, &p.Categories},
		productSelect+" WHERE p.product_id = ? GROUP BY p.product_id", id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errs.E(errs.NotFound, "product %d not found", id)
	}
	return &p, nil
}

func (r *ProductRepository) List(ctx context.Context, limit int) ([]models.Product, error) {
	products := make([]models.Product, 0, limit)
	err := r.gw.Query(ctx, nil, func(rows *sql.Rows) error {
		var p models.Product
		if err := rows.Scan(&p.ID, &p.Name, &p.Code, &p.Price, &p.Stock, &p.Categories); err != nil {
			return err
		}
		products = append(products, p)
		return nil
	}, productSelect+" GROUP BY p.product_id ORDER BY p.product_id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	return products, nil
}

// LockForUpdate takes exclusive row locks on the given products in one
// statement. Ids are locked in ascending order so two orders over
// overlapping product sets can never deadlock on each other; the locks are
// held until tx finishes.
func (r *ProductRepository) LockForUpdate(ctx context.Context, tx *sql.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}

	sorted := make([]int64, len(ids))
	copy(sorted, ids)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	args := make([]any, len(sorted))
	for i, id := range sorted {
		args[i] = id
	}

	query := "SELECT product_id FROM product WHERE product_id IN (" +
		placeholders(len(sorted)) + ") ORDER BY product_id FOR UPDATE"
	return r.gw.Query(ctx, tx, func(rows *sql.Rows) error {
		var id int64
		return rows.Scan(&id)
	}, query, args...)
}

// DecrementStock applies stock = stock - quantity unconditionally and returns
// the resulting stock. The caller must already have checked sufficiency and,
// inside a multi-row transaction, must hold the row lock.
func (r *ProductRepository) DecrementStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) (int, error) {
	affected, err := r.gw.Execute(ctx, tx,
		"UPDATE product SET stock = stock - ? WHERE product_id = ?", quantity, id)
	if err != nil {
		return 0, err
	}
	if affected == 0 {
		return 0, errs.E(errs.NotFound, "product %d not found", id)
	}
	return r.readStock(ctx, tx, id)
}

// RestoreStock compensates a prior decrement.
func (r *ProductRepository) RestoreStock(ctx context.Context, tx *sql.Tx, id int64, quantity int) error {
	affected, err := r.gw.Execute(ctx, tx,
		"UPDATE product SET stock = stock + ? WHERE product_id = ?", quantity, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return errs.E(errs.NotFound, "product %d not found", id)
	}
	return nil
}

func (r *ProductRepository) readStock(ctx context.Context, tx *sql.Tx, id int64) (int, error) {
	var stock int
	found, err := r.gw.QueryOne(ctx, tx, []any{&stock},
		"SELECT stock FROM product WHERE product_id = ?", id)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errs.E(errs.NotFound, "product %d not found", id)
	}
	return stock, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

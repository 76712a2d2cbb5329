// Package services holds the transactional order/inventory engine and the
// optimistic stock controller layered on the repositories.
package services

import (
	"context"
	"database/sql"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"retail-order-service/database"
	"retail-order-service/errs"
	"retail-order-service/models"
	"retail-order-service/repositories"
)

// OrderService orchestrates order creation and deletion. All multi-statement
// work runs inside a single transaction whose row locks serialize concurrent
// orders over overlapping products.
type OrderService struct {
	gw        *database.Gateway
	products  *repositories.ProductRepository
	customers *repositories.CustomerRepository
	orders    *repositories.OrderRepository
	log       *zap.Logger
}

func NewOrderService(gw *database.Gateway, products *repositories.ProductRepository,
	customers *repositories.CustomerRepository, orders *repositories.OrderRepository,
	log *zap.Logger) *OrderService {
	return &OrderService{gw: gw, products: products, customers: customers, orders: orders, log: log}
}

type orderLine struct {
	productID int64
	quantity  int
}

// parseItems validates raw "productId:quantity" lines before any database
// work. Blank entries are skipped; anything malformed fails the whole call.
func parseItems(items []string) ([]orderLine, error) {
	lines := make([]orderLine, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 2 {
			return nil, errs.E(errs.InvalidInput, "malformed item %q, want productId:quantity", item)
		}
		productID, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
		if err != nil {
			return nil, errs.E(errs.InvalidInput, "item %q: product id is not a number", item)
		}
		quantity, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, errs.E(errs.InvalidInput, "item %q: quantity is not a number", item)
		}
		if quantity <= 0 {
			return nil, errs.E(errs.InvalidInput, "item %q: quantity must be positive", item)
		}
		lines = append(lines, orderLine{productID: productID, quantity: quantity})
	}
	if len(lines) == 0 {
		return nil, errs.E(errs.InvalidInput, "order must contain at least one item")
	}
	return lines, nil
}

// newOrderCode derives a globally unique order code from the wall clock:
// ORD + 16 digits of the timestamp down to fractions of a second. A
// formatting convention, not a uniqueness proof — the unique key on
// order_code is the guarantee.
func newOrderCode(t time.Time) string {
	digits := strings.Replace(t.Format("20060102150405.000000"), ".", "", 1)
	return "ORD" + digits[:16]
}

// CreateOrder validates, prices and commits a multi-item order atomically.
//
// Inside one transaction it locks every involved product row in ascending id
// order, resolves the customer by phone (creating one if needed), re-reads
// the locked rows to check stock and accumulate the total, inserts the order
// and its items, and decrements stock under the locks taken up front. Any
// failure rolls the whole transaction back.
func (s *OrderService) CreateOrder(ctx context.Context, custName, custPhone, custAddr string, items []string) (*models.OrderConfirmation, error) {
	lines, err := parseItems(items)
	if err != nil {
		return nil, err
	}

	var conf *models.OrderConfirmation
	err = s.gw.InTransaction(ctx, func(tx *sql.Tx) error {
		if err := s.products.LockForUpdate(ctx, tx, lockIDs(lines)); err != nil {
			return err
		}

		customerID, err := s.resolveCustomer(ctx, tx, custName, custPhone, custAddr)
		if err != nil {
			return err
		}

		total := decimal.Zero
		orderItems := make([]models.OrderItem, 0, len(lines))
		for _, line := range lines {
			product, err := s.products.Get(ctx, tx, line.productID)
			if err != nil {
				return err
			}
			if product.Stock < line.quantity {
				return errs.E(errs.InsufficientStock,
					"insufficient stock for product %q (have %d, need %d)",
					product.Name, product.Stock, line.quantity)
			}
			subtotal := product.Price.Mul(decimal.NewFromInt(int64(line.quantity)))
			total = total.Add(subtotal).Round(2)
			orderItems = append(orderItems, models.OrderItem{
				ProductID: line.productID,
				Quantity:  line.quantity,
				UnitPrice: product.Price,
			})
		}

		now := time.Now()
		code := newOrderCode(now)
		orderID, err := s.orders.Insert(ctx, tx, code, customerID, models.StatusPending, total, now)
		if err != nil {
			return err
		}
		if err := s.orders.InsertItems(ctx, tx, orderID, orderItems); err != nil {
			return err
		}

		// Locks from the lock phase are still held; plain updates suffice.
		for _, line := range lines {
			if _, err := s.products.DecrementStock(ctx, tx, line.productID, line.quantity); err != nil {
				return err
			}
		}

		conf = &models.OrderConfirmation{OrderID: orderID, OrderCode: code, TotalAmount: total}
		return nil
	})
	if err != nil {
		s.log.Warn("order creation failed",
			zap.String("phone", custPhone),
			zap.String("kind", errs.KindOf(err).String()),
			zap.Error(err))
		return nil, err
	}

	s.log.Info("order created",
		zap.Int64("order_id", conf.OrderID),
		zap.String("order_code", conf.OrderCode),
		zap.String("total", conf.TotalAmount.StringFixed(2)))
	return conf, nil
}

// lockIDs returns the distinct product ids of the order in ascending order.
func lockIDs(lines []orderLine) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.productID]; ok {
			continue
		}
		seen[line.productID] = struct{}{}
		ids = append(ids, line.productID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// resolveCustomer looks the customer up by phone and creates one if absent.
// The lookup-then-insert is a known race: if a concurrent order registers
// the phone first, the unique key fires and we re-read the committed row
// with a locking read and reuse it instead of failing the order.
func (s *OrderService) resolveCustomer(ctx context.Context, tx *sql.Tx, name, phone, address string) (int64, error) {
	customer, err := s.customers.FindByPhone(ctx, tx, phone)
	if err != nil {
		return 0, err
	}
	if customer != nil {
		return customer.ID, nil
	}

	id, err := s.customers.Create(ctx, tx, name, phone, address)
	if err == nil {
		return id, nil
	}
	if errs.KindOf(err) != errs.Conflict {
		return 0, err
	}

	existing, lookupErr := s.customers.FindByPhoneLocked(ctx, tx, phone)
	if lookupErr != nil {
		return 0, lookupErr
	}
	if existing == nil {
		return 0, err
	}
	s.log.Info("reusing concurrently registered customer",
		zap.String("phone", phone), zap.Int64("customer_id", existing.ID))
	return existing.ID, nil
}

// FindOrCreateCustomer is the standalone form of the engine's customer
// resolution, for collaborators that register customers outside an order.
func (s *OrderService) FindOrCreateCustomer(ctx context.Context, name, phone, address string) (*models.Customer, error) {
	var customer *models.Customer
	err := s.gw.InTransaction(ctx, func(tx *sql.Tx) error {
		id, err := s.resolveCustomer(ctx, tx, name, phone, address)
		if err != nil {
			return err
		}
		// Locking read sees the row whether we just inserted it or a
		// concurrent transaction committed it.
		resolved, err := s.customers.FindByPhoneLocked(ctx, tx, phone)
		if err != nil {
			return err
		}
		if resolved == nil {
			return errs.E(errs.Database, "customer %d vanished during resolution", id)
		}
		customer = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return customer, nil
}

// DeleteOrder reverses a committed order: restores the decremented stock for
// every line item, then removes the items and the order, all in one
// transaction.
func (s *OrderService) DeleteOrder(ctx context.Context, orderID int64) error {
	err := s.gw.InTransaction(ctx, func(tx *sql.Tx) error {
		if _, err := s.orders.Get(ctx, tx, orderID); err != nil {
			return err
		}
		items, err := s.orders.Items(ctx, tx, orderID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := s.products.RestoreStock(ctx, tx, item.ProductID, item.Quantity); err != nil {
				return err
			}
		}
		if _, err := s.orders.DeleteItems(ctx, tx, orderID); err != nil {
			return err
		}
		if _, err := s.orders.Delete(ctx, tx, orderID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("order deleted", zap.Int64("order_id", orderID))
	return nil
}

// UpdateOrderStatus writes a new status label after an existence check. One
// row, no derived invariant, so no transaction is needed.
func (s *OrderService) UpdateOrderStatus(ctx context.Context, orderID int64, status string) error {
	if !models.ValidStatus(status) {
		return errs.E(errs.InvalidInput, "status must be one of %s, %s, %s",
			models.StatusPending, models.StatusShipped, models.StatusCompleted)
	}
	if _, err := s.orders.Get(ctx, nil, orderID); err != nil {
		return err
	}
	if _, err := s.orders.UpdateStatus(ctx, orderID, status); err != nil {
		return err
	}

	s.log.Info("order status updated", zap.Int64("order_id", orderID), zap.String("status", status))
	return nil
}

func (s *OrderService) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.orders.Get(ctx, nil, orderID)
}

func (s *OrderService) ListOrders(ctx context.Context, limit int) ([]models.OrderSummary, error) {
	return s.orders.List(ctx, limit)
}

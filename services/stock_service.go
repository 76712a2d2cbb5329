package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"retail-order-service/errs"
	"retail-order-service/middlewares"
	"retail-order-service/models"
	"retail-order-service/repositories"
)

const (
	stockMaxAttempts = 5
	stockBaseDelay   = 500 * time.Millisecond
)

// StockService is the optimistic path for standalone stock adjustments that
// cannot join the order engine's locking transaction. It check-then-writes
// without an exclusive lock, verifies the post-condition afterwards, and
// retries only on lock-wait timeouts with bounded exponential backoff.
type StockService struct {
	products *repositories.ProductRepository
	log      *zap.Logger

	maxAttempts int
	baseDelay   time.Duration
}

func NewStockService(products *repositories.ProductRepository, log *zap.Logger) *StockService {
	return &StockService{
		products:    products,
		log:         log,
		maxAttempts: stockMaxAttempts,
		baseDelay:   stockBaseDelay,
	}
}

// DecrementStock reduces a product's stock by quantity and returns the new
// stock level. Lock-wait timeouts are retried up to 5 times with 0.5s, 1s,
// 2s, 4s, 8s backoff; every other failure propagates immediately.
func (s *StockService) DecrementStock(ctx context.Context, productID int64, quantity int) (int, error) {
	if quantity <= 0 {
		return 0, errs.E(errs.InvalidInput, "quantity must be positive, got %d", quantity)
	}

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		newStock, err := s.tryDecrement(ctx, productID, quantity)
		if err == nil {
			return newStock, nil
		}
		if errs.KindOf(err) != errs.LockWaitTimeout {
			return 0, err
		}
		lastErr = err

		if attempt == s.maxAttempts {
			break
		}
		wait := s.baseDelay * (1 << (attempt - 1))
		middlewares.RecordStockRetry()
		s.log.Warn("lock wait timeout on stock update, backing off",
			zap.Int64("product_id", productID),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait))
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return 0, errs.Wrap(errs.Database, ctx.Err(), "stock update cancelled")
		}
	}
	return 0, errs.Wrap(errs.LockWaitTimeout, lastErr,
		"stock update for product %d failed after %d attempts", productID, s.maxAttempts)
}

func (s *StockService) tryDecrement(ctx context.Context, productID int64, quantity int) (int, error) {
	product, err := s.products.Get(ctx, nil, productID)
	if err != nil {
		return 0, err
	}
	if product.Stock < quantity {
		return 0, errs.E(errs.InsufficientStock,
			"insufficient stock for product %q (have %d, need %d)",
			product.Name, product.Stock, quantity)
	}

	newStock, err := s.products.DecrementStock(ctx, nil, productID, quantity)
	if err != nil {
		return 0, err
	}

	// No lock was held between the check and the write, so verify nothing
	// interleaved. A mismatch is a real conflict, not a transient timeout,
	// and is not retried here.
	if newStock != product.Stock-quantity {
		return 0, errs.E(errs.Conflict,
			"stock for product %d changed concurrently (expected %d, found %d)",
			productID, product.Stock-quantity, newStock)
	}
	return newStock, nil
}

func (s *StockService) GetProduct(ctx context.Context, productID int64) (*models.Product, error) {
	return s.products.Get(ctx, nil, productID)
}

func (s *StockService) ListProducts(ctx context.Context, limit int) ([]models.Product, error) {
	return s.products.List(ctx, limit)
}

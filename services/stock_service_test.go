package services

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"retail-order-service/database"
	"retail-order-service/errs"
	"retail-order-service/repositories"
)

func newTestStockService(t *testing.T) (*StockService, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	svc := NewStockService(repositories.NewProductRepository(database.NewGateway(mockDB)), zap.NewNop())
	svc.baseDelay = time.Millisecond
	return svc, mock, mockDB
}

func expectStockProduct(mock sqlmock.Sqlmock, stock int) {
	mock.ExpectQuery(`(?s)SELECT p\.product_id.*GROUP BY p\.product_id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"product_id", "name", "code", "price", "stock", "categories"}).
			AddRow(1, "Widget", "W-1", "9.99", stock, ""))
}

func lockWaitErr() error {
	return &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}
}

func TestStockDecrement(t *testing.T) {
	t.Run("returns the verified new stock", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()

		expectStockProduct(mock, 10)
		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT stock FROM product WHERE product_id = \?`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(7))

		newStock, err := svc.DecrementStock(context.Background(), 1, 3)

		require.NoError(t, err)
		assert.Equal(t, 7, newStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rejects non-positive quantities up front", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()

		_, err := svc.DecrementStock(context.Background(), 1, 0)

		assert.Equal(t, errs.InvalidInput, errs.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient stock fails without an update", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()

		expectStockProduct(mock, 1)

		_, err := svc.DecrementStock(context.Background(), 1, 5)

		assert.Equal(t, errs.InsufficientStock, errs.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStockDecrementRetry(t *testing.T) {
	t.Run("retries a lock wait timeout and succeeds", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()

		// Attempt 1 hits a lock wait timeout on the write.
		expectStockProduct(mock, 10)
		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(1)).
			WillReturnError(lockWaitErr())
		// Attempt 2 goes through.
		expectStockProduct(mock, 10)
		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT stock FROM product WHERE product_id = \?`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(7))

		newStock, err := svc.DecrementStock(context.Background(), 1, 3)

		require.NoError(t, err)
		assert.Equal(t, 7, newStock)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("gives up after the attempt budget", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()
		svc.maxAttempts = 2

		for i := 0; i < 2; i++ {
			expectStockProduct(mock, 10)
			mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
				WithArgs(3, int64(1)).
				WillReturnError(lockWaitErr())
		}

		_, err := svc.DecrementStock(context.Background(), 1, 3)

		assert.Equal(t, errs.LockWaitTimeout, errs.KindOf(err))
		assert.ErrorContains(t, err, "failed after 2 attempts")
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("other database failures are not retried", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()

		expectStockProduct(mock, 10)
		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(1)).
			WillReturnError(errors.New("driver: bad connection"))

		_, err := svc.DecrementStock(context.Background(), 1, 3)

		assert.Equal(t, errs.Database, errs.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet(), "only one attempt may run")
	})

	t.Run("a concurrent interleaving is a conflict, not a retry", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()

		expectStockProduct(mock, 10)
		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		// Someone else changed stock between our read and write.
		mock.ExpectQuery(`SELECT stock FROM product WHERE product_id = \?`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(4))

		_, err := svc.DecrementStock(context.Background(), 1, 3)

		assert.Equal(t, errs.Conflict, errs.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet(), "a mismatch must not trigger another attempt")
	})

	t.Run("respects context cancellation during backoff", func(t *testing.T) {
		svc, mock, db := newTestStockService(t)
		defer db.Close()
		svc.baseDelay = time.Minute

		expectStockProduct(mock, 10)
		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(1)).
			WillReturnError(lockWaitErr())

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(10 * time.Millisecond)
			cancel()
		}()
		_, err := svc.DecrementStock(ctx, 1, 3)

		assert.Equal(t, errs.Database, errs.KindOf(err))
		assert.ErrorIs(t, err, context.Canceled)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestStockBackoffSchedule(t *testing.T) {
	base := 500 * time.Millisecond
	want := []time.Duration{
		500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second,
	}
	for attempt := 1; attempt < stockMaxAttempts; attempt++ {
		assert.Equal(t, want[attempt-1], base*(1<<(attempt-1)))
	}
}

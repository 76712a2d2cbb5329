package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-order-service/database"
	"retail-order-service/errs"
)

func newMockProductRepository(t *testing.T) (*ProductRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewProductRepository(database.NewGateway(mockDB)), mock, mockDB
}

func productRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"product_id", "name", "code", "price", "stock", "categories"})
}

func TestProductGet(t *testing.T) {
	t.Run("returns the product with joined categories", func(t *testing.T) {
		repo, mock, db := newMockProductRepository(t)
		defer db.Close()

		mock.ExpectQuery(`(?s)SELECT p\.product_id.*WHERE p\.product_id = \? GROUP BY p\.product_id`).
			WithArgs(int64(1)).
			WillReturnRows(productRows().AddRow(1, "Mechanical Keyboard", "KB-01", "199.00", 10, "peripherals,office"))

		product, err := repo.Get(context.Background(), nil, 1)

		require.NoError(t, err)
		assert.Equal(t, int64(1), product.ID)
		assert.Equal(t, "peripherals,office", product.Categories)
		assert.True(t, product.Price.Equal(decimal.RequireFromString("199.00")))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown id is NotFound", func(t *testing.T) {
		repo, mock, db := newMockProductRepository(t)
		defer db.Close()

		mock.ExpectQuery(`(?s)SELECT p\.product_id.*GROUP BY p\.product_id`).
			WithArgs(int64(99)).
			WillReturnRows(productRows())

		_, err := repo.Get(context.Background(), nil, 99)

		assert.Equal(t, errs.NotFound, errs.KindOf(err))
	})
}

func TestProductGetIdempotentRead(t *testing.T) {
	repo, mock, db := newMockProductRepository(t)
	defer db.Close()

	for i := 0; i < 2; i++ {
		mock.ExpectQuery(`(?s)SELECT p\.product_id.*GROUP BY p\.product_id`).
			WithArgs(int64(1)).
			WillReturnRows(productRows().AddRow(1, "Widget", "W-1", "9.99", 10, ""))
	}

	first, err := repo.Get(context.Background(), nil, 1)
	require.NoError(t, err)
	second, err := repo.Get(context.Background(), nil, 1)
	require.NoError(t, err)

	assert.Equal(t, first.Stock, second.Stock)
	assert.True(t, first.Price.Equal(second.Price))
}

func TestLockForUpdate(t *testing.T) {
	t.Run("locks ids in ascending order regardless of input order", func(t *testing.T) {
		repo, mock, db := newMockProductRepository(t)
		defer db.Close()

		mock.ExpectBegin()
		mock.ExpectQuery(`SELECT product_id FROM product WHERE product_id IN \(\?,\?,\?\) ORDER BY product_id FOR UPDATE`).
			WithArgs(int64(1), int64(2), int64(5)).
			WillReturnRows(sqlmock.NewRows([]string{"product_id"}).AddRow(1).AddRow(2).AddRow(5))
		mock.ExpectCommit()

		gw := database.NewGateway(db)
		err := gw.InTransaction(context.Background(), func(tx *sql.Tx) error {
			return repo.LockForUpdate(context.Background(), tx, []int64{5, 1, 2})
		})

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no ids, no statement", func(t *testing.T) {
		repo, mock, db := newMockProductRepository(t)
		defer db.Close()

		err := repo.LockForUpdate(context.Background(), nil, nil)

		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestDecrementStock(t *testing.T) {
	t.Run("returns the new stock level", func(t *testing.T) {
		repo, mock, db := newMockProductRepository(t)
		defer db.Close()

		mock.ExpectExec(`UPDATE product SET stock = stock - \? WHERE product_id = \?`).
			WithArgs(3, int64(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(`SELECT stock FROM product WHERE product_id = \?`).
			WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows([]string{"stock"}).AddRow(7))

		newStock, err := repo.DecrementStock(context.Background(), nil, 1, 3)

		require.NoError(t, err)
		assert.Equal(t, 7, newStock)
	})

	t.Run("zero affected rows is NotFound", func(t *testing.T) {
		repo, mock, db := newMockProductRepository(t)
		defer db.Close()

		mock.ExpectExec(`UPDATE product SET stock = stock - \?`).
			WithArgs(3, int64(99)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		_, err := repo.DecrementStock(context.Background(), nil, 99, 3)

		assert.Equal(t, errs.NotFound, errs.KindOf(err))
	})
}

func TestRestoreStock(t *testing.T) {
	repo, mock, db := newMockProductRepository(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE product SET stock = stock \+ \? WHERE product_id = \?`).
		WithArgs(3, int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.RestoreStock(context.Background(), nil, 1, 3)

	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retail-order-service/database"
	"retail-order-service/errs"
)

func newMockCustomerRepository(t *testing.T) (*CustomerRepository, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	return NewCustomerRepository(database.NewGateway(mockDB)), mock, mockDB
}

func customerRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"customer_id", "name", "phone", "address", "reg_date"})
}

func TestFindByPhone(t *testing.T) {
	t.Run("returns the customer", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT customer_id, name, phone, address, reg_date FROM customer WHERE phone = \?$`).
			WithArgs("13800000001").
			WillReturnRows(customerRows().AddRow(7, "Alice", "13800000001", "1 Main St", time.Now()))

		customer, err := repo.FindByPhone(context.Background(), nil, "13800000001")

		require.NoError(t, err)
		require.NotNil(t, customer)
		assert.Equal(t, int64(7), customer.ID)
	})

	t.Run("unknown phone returns nil, not an error", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT customer_id, name, phone, address, reg_date FROM customer WHERE phone = \?$`).
			WithArgs("unknown").
			WillReturnRows(customerRows())

		customer, err := repo.FindByPhone(context.Background(), nil, "unknown")

		require.NoError(t, err)
		assert.Nil(t, customer)
	})

	t.Run("locked variant issues a locking read", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT customer_id, name, phone, address, reg_date FROM customer WHERE phone = \? FOR UPDATE`).
			WithArgs("13800000001").
			WillReturnRows(customerRows().AddRow(7, "Alice", "13800000001", "1 Main St", time.Now()))

		customer, err := repo.FindByPhoneLocked(context.Background(), nil, "13800000001")

		require.NoError(t, err)
		require.NotNil(t, customer)
	})
}

func TestCustomerCreate(t *testing.T) {
	t.Run("returns the generated id", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO customer \(name, phone, address, reg_date\) VALUES \(\?, \?, \?, CURDATE\(\)\)`).
			WithArgs("Alice", "13800000001", "1 Main St").
			WillReturnResult(sqlmock.NewResult(7, 1))

		id, err := repo.Create(context.Background(), nil, "Alice", "13800000001", "1 Main St")

		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
	})

	t.Run("duplicate phone surfaces as Conflict", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectExec(`INSERT INTO customer`).
			WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '13800000001'"})

		_, err := repo.Create(context.Background(), nil, "Bob", "13800000001", "2 Main St")

		assert.Equal(t, errs.Conflict, errs.KindOf(err))
	})
}

func TestCustomerUpdate(t *testing.T) {
	t.Run("rejects a phone held by another customer", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT customer_id FROM customer WHERE customer_id = \?`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow(7))
		mock.ExpectQuery(`SELECT customer_id FROM customer WHERE phone = \? AND customer_id != \?`).
			WithArgs("13800000002", int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"customer_id"}).AddRow(8))

		err := repo.Update(context.Background(), 7, "Alice", "13800000002", "1 Main St")

		assert.Equal(t, errs.Conflict, errs.KindOf(err))
	})

	t.Run("missing customer is NotFound", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT customer_id FROM customer WHERE customer_id = \?`).
			WithArgs(int64(99)).
			WillReturnRows(sqlmock.NewRows([]string{"customer_id"}))

		err := repo.Update(context.Background(), 99, "Nobody", "0", "")

		assert.Equal(t, errs.NotFound, errs.KindOf(err))
	})
}

func TestCustomerDelete(t *testing.T) {
	t.Run("refuses while orders reference the customer", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM shop_order WHERE customer_id = \?`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

		err := repo.Delete(context.Background(), 7)

		assert.Equal(t, errs.Conflict, errs.KindOf(err))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deletes an orderless customer", func(t *testing.T) {
		repo, mock, db := newMockCustomerRepository(t)
		defer db.Close()

		mock.ExpectQuery(`SELECT COUNT\(\*\) FROM shop_order WHERE customer_id = \?`).
			WithArgs(int64(7)).
			WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
		mock.ExpectExec(`DELETE FROM customer WHERE customer_id = \?`).
			WithArgs(int64(7)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.Delete(context.Background(), 7)

		require.NoError(t, err)
	})
}

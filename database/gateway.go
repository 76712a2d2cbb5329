package database

import (
	"context"
	"database/sql"
	"strings"

	"retail-order-service/errs"
)

// Gateway runs parameterized statements against the pool, optionally inside
// an externally owned transaction. Every method takes a *sql.Tx: when it is
// non-nil the call joins that transaction and the gateway never commits,
// rolls back or closes anything — lifecycle belongs to the caller. When it is
// nil the gateway uses the pool directly (single statements autocommit) or,
// for multi-statement work, opens and finishes its own transaction.
type Gateway struct {
	db *sql.DB
}

func NewGateway(db *sql.DB) *Gateway {
	return &Gateway{db: db}
}

// executor is the subset of *sql.DB / *sql.Tx the gateway needs.
type executor interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (g *Gateway) on(tx *sql.Tx) executor {
	if tx != nil {
		return tx
	}
	return g.db
}

// Query runs a parameterized read and invokes scan once per row.
func (g *Gateway) Query(ctx context.Context, tx *sql.Tx, scan func(*sql.Rows) error, query string, args ...any) error {
	rows, err := g.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return errs.Classify(err, stmtShape(query))
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return err
		}
	}
	if err := rows.Err(); err != nil {
		return errs.Classify(err, stmtShape(query))
	}
	return nil
}

// QueryOne scans the first result row into dest. The second return value is
// false when the statement matched no rows; that is not an error here so
// callers decide what absence means.
func (g *Gateway) QueryOne(ctx context.Context, tx *sql.Tx, dest []any, query string, args ...any) (bool, error) {
	rows, err := g.on(tx).QueryContext(ctx, query, args...)
	if err != nil {
		return false, errs.Classify(err, stmtShape(query))
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return false, errs.Classify(err, stmtShape(query))
		}
		return false, nil
	}
	if err := rows.Scan(dest...); err != nil {
		return false, errs.Classify(err, stmtShape(query))
	}
	return true, nil
}

// Execute runs a parameterized write and returns the affected row count.
func (g *Gateway) Execute(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := g.on(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.Classify(err, stmtShape(query))
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, errs.Classify(err, stmtShape(query))
	}
	return affected, nil
}

// ExecuteReturningID runs an insert and returns the auto-generated key.
func (g *Gateway) ExecuteReturningID(ctx context.Context, tx *sql.Tx, query string, args ...any) (int64, error) {
	res, err := g.on(tx).ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errs.Classify(err, stmtShape(query))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.Classify(err, stmtShape(query))
	}
	return id, nil
}

// ExecuteBatch applies one statement to many parameter tuples. With a nil tx
// the batch runs in its own transaction so it stays all-or-nothing.
func (g *Gateway) ExecuteBatch(ctx context.Context, tx *sql.Tx, query string, paramSets [][]any) (int64, error) {
	if tx != nil {
		return g.batch(ctx, tx, query, paramSets)
	}

	var affected int64
	err := g.InTransaction(ctx, func(own *sql.Tx) error {
		var err error
		affected, err = g.batch(ctx, own, query, paramSets)
		return err
	})
	if err != nil {
		return 0, err
	}
	return affected, nil
}

func (g *Gateway) batch(ctx context.Context, tx *sql.Tx, query string, paramSets [][]any) (int64, error) {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, errs.Classify(err, stmtShape(query))
	}
	defer stmt.Close()

	var total int64
	for _, params := range paramSets {
		res, err := stmt.ExecContext(ctx, params...)
		if err != nil {
			return 0, errs.Classify(err, stmtShape(query))
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, errs.Classify(err, stmtShape(query))
		}
		total += n
	}
	return total, nil
}

// InTransaction opens a transaction, runs fn, and commits. Any error from fn
// or commit rolls everything back; the deferred rollback is a no-op once the
// commit has succeeded.
func (g *Gateway) InTransaction(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := g.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Wrap(errs.Database, err, "begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errs.Classify(err, "commit transaction")
	}
	return nil
}

// stmtShape reduces a statement to a loggable prefix: whitespace collapsed,
// truncated, with only `?` placeholders — bound values never appear.
func stmtShape(query string) string {
	shape := strings.Join(strings.Fields(query), " ")
	if len(shape) > 80 {
		shape = shape[:80] + "..."
	}
	return shape
}

package driver

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// Connection is a single physical database connection pinned out of a
// *sql.DB pool, handed out by sqlstore/pool.Pool. Column values arrive as
// text (sql.NullString), exactly as the teacher's opaque record-set API
// promises: numeric and array-literal decoding is the caller's (the value
// codec's) responsibility.
type Connection struct {
	conn *sql.Conn
}

// newConnection wraps an already-acquired *sql.Conn.
func newConnection(conn *sql.Conn) *Connection {
	return &Connection{conn: conn}
}

// Exec runs sqlText and returns a RecordSet over its result. It is used
// uniformly for SELECT, INSERT, UPDATE and DELETE statements -- Postgres
// and SQLite both tolerate Query() against statements with no result
// columns, returning a RecordSet with zero rows.
func (c *Connection) Exec(ctx context.Context, sqlText string) (*RecordSet, error) {
	rows, err := c.conn.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, errors.WithMessage(err, "executing statement")
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.WithMessage(err, "reading result columns")
	}
	return &RecordSet{rows: rows, cols: cols}, nil
}

// Begin starts a transaction on this connection. The caller must Commit or
// Rollback it before issuing any other statement on the same Connection.
func (c *Connection) Begin(ctx context.Context) (*Tx, error) {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return nil, errors.WithMessage(err, "beginning transaction")
	}
	return &Tx{tx: tx}, nil
}

// Tx is a transaction scoped to a single Connection, used by the value
// codec's storeValuation to make the "delete old row, insert new row"
// sequence atomic.
type Tx struct {
	tx *sql.Tx
}

// Exec runs sqlText inside the transaction.
func (t *Tx) Exec(ctx context.Context, sqlText string) (*RecordSet, error) {
	rows, err := t.tx.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, errors.WithMessage(err, "executing statement in transaction")
	}
	cols, err := rows.Columns()
	if err != nil {
		rows.Close()
		return nil, errors.WithMessage(err, "reading result columns")
	}
	return &RecordSet{rows: rows, cols: cols}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	return errors.WithMessage(t.tx.Commit(), "committing transaction")
}

// Rollback aborts the transaction.
func (t *Tx) Rollback() error {
	return errors.WithMessage(t.tx.Rollback(), "rolling back transaction")
}

// Close releases the underlying physical connection back to database/sql.
// It is called by the pool only at teardown; ordinary request lifecycle
// uses Pool.Release to keep the connection warm in the pool instead.
func (c *Connection) Close() error {
	return c.conn.Close()
}

// RecordSet is the result of a single Connection.Exec call.
type RecordSet struct {
	rows *sql.Rows
	cols []string
}

// Release frees the RecordSet's server-side resources. It must be called
// exactly once, on every exit path.
func (rs *RecordSet) Release() error {
	return rs.rows.Close()
}

// ForEachRow invokes cb once per result row. cb returns true to stop
// iterating early. ForEachRow returns any error encountered scanning rows,
// or the driver's terminal row error.
func (rs *RecordSet) ForEachRow(cb func(Row) (stop bool)) error {
	vals := make([]sql.NullString, len(rs.cols))
	ptrs := make([]interface{}, len(rs.cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rs.rows.Next() {
		if err := rs.rows.Scan(ptrs...); err != nil {
			return errors.WithMessage(err, "scanning row")
		}
		if cb(Row{cols: rs.cols, vals: vals}) {
			break
		}
	}
	return rs.rows.Err()
}

// Row is a single result row, valid only during the ForEachRow callback
// that received it.
type Row struct {
	cols []string
	vals []sql.NullString
}

// ForEachColumn invokes cb once per column with its name and NUL-safe text
// value; valid is false for a SQL NULL. cb returns true to stop iterating
// early.
func (r Row) ForEachColumn(cb func(name, value string, valid bool) (stop bool)) {
	for i, name := range r.cols {
		if cb(name, r.vals[i].String, r.vals[i].Valid) {
			return
		}
	}
}

// Get returns a single named column's text value from the row.
func (r Row) Get(name string) (value string, valid bool) {
	for i, c := range r.cols {
		if c == name {
			return r.vals[i].String, r.vals[i].Valid
		}
	}
	return "", false
}

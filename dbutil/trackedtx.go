package dbutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

var ErrUnexpectedRowCount = errors.New("unexpected row count")

// Tx is a transaction that knows whether it has finished, so callers can
// defer MaybeRollback unconditionally after NewTx.
type Tx struct {
	tx *sql.Tx
}

// Beginner is satisfied by *sql.DB and *sql.Conn.
type Beginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

func NewTx(ctx context.Context, db Beginner, opts *sql.TxOptions) (*Tx, error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return nil, err
	}
	return &Tx{tx: tx}, nil
}

func (tt *Tx) Tx() *sql.Tx {
	return tt.tx
}

// Done reports whether the transaction was committed or rolled back.
func (tt *Tx) Done() bool {
	return tt.tx == nil
}

func (tt *Tx) MaybeRollback() {
	if tt.tx != nil {
		_ = tt.tx.Rollback()
		tt.tx = nil
	}
}

func (tt *Tx) Commit() error {
	if tt.tx == nil {
		return sql.ErrTxDone
	}
	err := tt.tx.Commit()
	tt.tx = nil
	return err
}

func (tt *Tx) QueryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return tt.tx.QueryRowContext(ctx, query, args...)
}

func (tt *Tx) Exec(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return tt.tx.ExecContext(ctx, query, args...)
}

// ExecAffecting runs an exec that must touch exactly want rows.
func (tt *Tx) ExecAffecting(ctx context.Context, want int64, query string, args ...any) error {
	res, err := tt.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != want {
		return fmt.Errorf("%w: want %d, got %d", ErrUnexpectedRowCount, want, n)
	}
	return nil
}

// Notify sends a Postgres notification inside the transaction, so listeners
// only hear about it once the transaction commits.
func (tt *Tx) Notify(ctx context.Context, channel, payload string) error {
	_, err := tt.Exec(ctx, "SELECT pg_notify($1, $2)", channel, payload)
	return err
}

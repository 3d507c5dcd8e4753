// Package pgxutil runs pgx work on connections borrowed from a database/sql pool.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// ErrNotPgx is returned when the pool was opened with a driver other than pgx.
var ErrNotPgx = errors.New("pgxutil: driver connection is not pgx")

// Conn runs fn on the pgx connection behind one pooled connection. The connection goes
// back to the pool when fn returns.
func Conn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	sqlConn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer sqlConn.Close() //nolint:errcheck // returns the connection to the pool

	return sqlConn.Raw(func(driverConn any) error {
		std, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("%w: %T", ErrNotPgx, driverConn)
		}
		return fn(std.Conn())
	})
}

// Tx runs fn in a transaction at the given isolation level. An error from fn rolls the
// transaction back; a rollback failure is joined onto it.
func Tx(ctx context.Context, db *sql.DB, iso pgx.TxIsoLevel, fn func(pgx.Tx) error) error {
	return Conn(ctx, db, func(conn *pgx.Conn) (err error) {
		tx, err := conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: iso})
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer func() {
			if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
				err = errors.Join(err, fmt.Errorf("rollback: %w", rbErr))
			}
		}()

		if err = fn(tx); err != nil {
			return err
		}
		if err = tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit: %w", err)
		}
		return nil
	})
}

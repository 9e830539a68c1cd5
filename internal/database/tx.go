package database

import (
	"context"
	"database/sql"
	"fmt"
)

// Tx is a unit of work against the quiz tables. All reads and writes made
// through one Tx commit together or not at all.
type Tx struct {
	tx *sql.Tx
}

// WithTx runs fn inside a transaction. A non-nil error from fn rolls back.
func (db *DB) WithTx(ctx context.Context, fn func(tx *Tx) error) error {
	sqlTx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&Tx{tx: sqlTx}); err != nil {
		sqlTx.Rollback()
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

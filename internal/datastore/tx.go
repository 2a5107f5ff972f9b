package datastore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/picpocket/picpocket/internal/errors"
)

// WithTx runs fn inside a transaction. An error or panic from fn rolls back,
// anything else commits. Errors from fn are returned unchanged so callers
// keep their categories.
func WithTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return dbError(err, "begin")
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return errors.Join(err, dbError(fmt.Errorf("rollback: %w", rbErr), "rollback"))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return dbError(err, "commit")
	}
	return nil
}

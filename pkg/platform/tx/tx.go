// Package tx runs a function inside one database/sql transaction.
package tx

import (
	"context"
	"database/sql"
	"time"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// DefaultTimeout bounds a transaction whose context carries no deadline.
const DefaultTimeout = 5 * time.Second

// Run begins a transaction on db, runs fn and commits when fn succeeds. The
// transaction is rolled back on any error. A context that is already done, or
// that expires while fn runs, yields StoreTimeout.
func Run(ctx context.Context, db *sql.DB, timeout time.Duration, fn func(tx *sql.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreTimeout, "transaction aborted: context cancelled")
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreTimeout, "transaction aborted: deadline exceeded")
	}
	return tx.Commit()
}

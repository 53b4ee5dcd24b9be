package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/changeuikim/vercel-kayce/pkg/platform/sentinel"
)

// classify translates driver errors into sentinel facts. Unrecognized errors
// are returned with context only.
func classify(action string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrNotFound, err)
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrTimeout, err)
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrUnavailable, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return wrapSQLState(action, pgErr.Code, err)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return wrapSQLState(action, string(pqErr.Code), err)
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		return wrapSQLiteCode(action, liteErr.Code(), err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// wrapSQLState maps Postgres SQLSTATE codes.
func wrapSQLState(action, code string, err error) error {
	switch {
	case code == "23505":
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrConflict, err)
	case code == "23502", code == "23514", strings.HasPrefix(code, "22"):
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrInvalid, err)
	case code == "57014":
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrTimeout, err)
	case strings.HasPrefix(code, "08"), code == "40001", code == "40P01", code == "57P01":
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrUnavailable, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

// wrapSQLiteCode maps extended result codes first, then the primary code in
// the low byte.
func wrapSQLiteCode(action string, code int, err error) error {
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrConflict, err)
	case sqlite3.SQLITE_CONSTRAINT_CHECK, sqlite3.SQLITE_CONSTRAINT_NOTNULL:
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrInvalid, err)
	}
	switch code & 0xff {
	case sqlite3.SQLITE_CONSTRAINT:
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("%s: %w: %w", action, sentinel.ErrConflict, err)
		}
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrInvalid, err)
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrUnavailable, err)
	case sqlite3.SQLITE_INTERRUPT:
		return fmt.Errorf("%s: %w: %w", action, sentinel.ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w", action, err)
}

package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/changeuikim/vercel-kayce/pkg/platform/sentinel"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"no rows", sql.ErrNoRows, sentinel.ErrNotFound},
		{"deadline", context.DeadlineExceeded, sentinel.ErrTimeout},
		{"cancelled", fmt.Errorf("query: %w", context.Canceled), sentinel.ErrTimeout},
		{"bad connection", driver.ErrBadConn, sentinel.ErrUnavailable},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, sentinel.ErrConflict},
		{"pgx check", &pgconn.PgError{Code: "23514"}, sentinel.ErrInvalid},
		{"pgx bad text", &pgconn.PgError{Code: "22P02"}, sentinel.ErrInvalid},
		{"pgx statement timeout", &pgconn.PgError{Code: "57014"}, sentinel.ErrTimeout},
		{"pgx serialization", &pgconn.PgError{Code: "40001"}, sentinel.ErrUnavailable},
		{"pq unique", &pq.Error{Code: "23505"}, sentinel.ErrConflict},
		{"pq connection", &pq.Error{Code: "08006"}, sentinel.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify("op", tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}

	t.Run("unrecognized errors keep their cause only", func(t *testing.T) {
		cause := errors.New("weird")
		got := classify("op", cause)
		assert.ErrorIs(t, got, cause)
		for _, s := range []error{sentinel.ErrNotFound, sentinel.ErrConflict, sentinel.ErrInvalid, sentinel.ErrTimeout, sentinel.ErrUnavailable} {
			assert.NotErrorIs(t, got, s)
		}
	})

	t.Run("nil stays nil", func(t *testing.T) {
		assert.NoError(t, classify("op", nil))
	})
}

func TestWrapSQLiteCode(t *testing.T) {
	tests := []struct {
		name string
		code int
		msg  string
		want error
	}{
		{"unique", sqlite3.SQLITE_CONSTRAINT_UNIQUE, "UNIQUE constraint failed", sentinel.ErrConflict},
		{"primary key", sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, "UNIQUE constraint failed", sentinel.ErrConflict},
		{"check", sqlite3.SQLITE_CONSTRAINT_CHECK, "CHECK constraint failed", sentinel.ErrInvalid},
		{"primary constraint code", sqlite3.SQLITE_CONSTRAINT, "UNIQUE constraint failed: users.identity_key", sentinel.ErrConflict},
		{"busy", sqlite3.SQLITE_BUSY, "database is locked", sentinel.ErrUnavailable},
		{"interrupt", sqlite3.SQLITE_INTERRUPT, "interrupted", sentinel.ErrTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, wrapSQLiteCode("op", tt.code, errors.New(tt.msg)), tt.want)
		})
	}
}

// Package database opens the *sql.DB for a configured driver and picks the
// matching SQL dialect.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/changeuikim/vercel-kayce/internal/query"
)

// DialectFor maps a database/sql driver name to its dialect.
func DialectFor(driver string) (query.Dialect, error) {
	switch driver {
	case "pgx", "postgres":
		return query.Postgres, nil
	case "sqlite":
		return query.SQLite, nil
	}
	return query.Dialect{}, fmt.Errorf("unsupported database driver %q", driver)
}

// Open connects and pings. SQLite is limited to one connection so writers
// never contend for the file lock.
func Open(ctx context.Context, driver, url string) (*sql.DB, query.Dialect, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, query.Dialect{}, err
	}
	db, err := sql.Open(driver, url)
	if err != nil {
		return nil, query.Dialect{}, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == query.SQLite {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, query.Dialect{}, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, dialect, nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/platform/tx"
)

const defaultTxTimeout = tx.DefaultTimeout

// Users describes the users table for query rendering.
var Users = query.Table{
	Name: "users",
	Columns: map[query.Field]string{
		query.FieldID:          "id",
		query.FieldProvider:    "provider",
		query.FieldIdentityKey: "identity_key",
		query.FieldIsDeleted:   "is_deleted",
		query.FieldCreatedAt:   "created_at",
		query.FieldDeletedAt:   "deleted_at",
	},
	Select: []string{"id", "provider", "identity_key", "is_deleted", "deleted_at", "created_at"},
}

const returning = " RETURNING id, provider, identity_key, is_deleted, deleted_at, created_at"

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore persists users through database/sql. The dialect decides
// placeholders and value encoding, so one implementation serves Postgres
// (pgx or lib/pq) and SQLite.
type SQLStore struct {
	db      queryer
	dialect query.Dialect
}

func NewSQLStore(db *sql.DB, dialect query.Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) Find(ctx context.Context, q query.Query) ([]*models.User, error) {
	var cursor *models.User
	if q.After != "" {
		var err error
		cursor, err = s.cursorRow(ctx, q.After)
		if err != nil {
			return nil, err
		}
	}

	stmt, args, err := s.dialect.BuildSelect(Users, q, rowOrNil(cursor))
	if err != nil {
		return nil, fmt.Errorf("build user query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, classify("find users", err)
	}
	defer rows.Close()

	users := []*models.User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, classify("scan user", err)
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate users", err)
	}
	return users, nil
}

func (s *SQLStore) cursorRow(ctx context.Context, after string) (*models.User, error) {
	cursorID, err := id.ParseUserID(after)
	if err != nil {
		return nil, query.ErrCursorNotFound
	}
	stmt, args, err := s.dialect.BuildSelect(Users, query.Query{
		Where: query.StringEq{Field: query.FieldID, Value: cursorID.String()},
		Limit: 1,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("build cursor query: %w", err)
	}
	u, err := scanUser(s.db.QueryRowContext(ctx, stmt, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, query.ErrCursorNotFound
	}
	if err != nil {
		return nil, classify("load cursor", err)
	}
	return u, nil
}

func (s *SQLStore) Count(ctx context.Context, where query.Predicate) (int, error) {
	stmt, args, err := s.dialect.BuildCount(Users, where)
	if err != nil {
		return 0, fmt.Errorf("build count query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, classify("count users", err)
	}
	return n, nil
}

func (s *SQLStore) Insert(ctx context.Context, u *models.User) (*models.User, error) {
	rec := u.Clone()
	if rec.ID.IsNil() {
		rec.ID = id.NewUserID()
	}
	a := s.dialect.NewArgs()
	stmt := "INSERT INTO users (id, provider, identity_key, is_deleted, deleted_at, created_at) VALUES (" +
		a.Add(rec.ID.String()) + ", " +
		a.Add(string(rec.Provider)) + ", " +
		a.Add(string(rec.IdentityKey)) + ", " +
		a.Add(s.dialect.BoolArg(rec.IsDeleted)) + ", " +
		a.Add(s.timeOrNil(rec.DeletedAt)) + ", " +
		a.Add(s.dialect.TimeArg(rec.CreatedAt)) + ")" + returning

	created, err := scanUser(s.db.QueryRowContext(ctx, stmt, a.Values()...))
	if err != nil {
		return nil, classify("insert user", err)
	}
	return created, nil
}

func (s *SQLStore) Update(ctx context.Context, userID id.UserID, patch models.Patch) (*models.User, error) {
	a := s.dialect.NewArgs()
	stmt := "UPDATE users SET is_deleted = " + a.Add(s.dialect.BoolArg(patch.IsDeleted)) +
		", deleted_at = " + a.Add(s.timeOrNil(patch.DeletedAt)) +
		" WHERE id = " + a.Add(userID.String()) + returning

	updated, err := scanUser(s.db.QueryRowContext(ctx, stmt, a.Values()...))
	if err != nil {
		return nil, classify(fmt.Sprintf("update user %s", userID), err)
	}
	return updated, nil
}

func (s *SQLStore) timeOrNil(t *time.Time) any {
	if t == nil {
		return nil
	}
	return s.dialect.TimeArg(*t)
}

// SQLTx runs lifecycle transactions on a *sql.DB.
type SQLTx struct {
	db      *sql.DB
	dialect query.Dialect
	timeout time.Duration
}

func NewSQLTx(db *sql.DB, dialect query.Dialect, timeout time.Duration) *SQLTx {
	return &SQLTx{db: db, dialect: dialect, timeout: timeout}
}

func (t *SQLTx) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	var fnErr error
	err := tx.Run(ctx, t.db, t.timeout, func(sqlTx *sql.Tx) error {
		fnErr = fn(&SQLStore{db: sqlTx, dialect: t.dialect})
		return fnErr
	})
	if err == nil || err == fnErr {
		return err
	}
	if _, ok := dErrors.As(err); ok {
		return err
	}
	return classify("user transaction", err)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUser(row scanner) (*models.User, error) {
	var (
		rawID     string
		provider  string
		key       string
		isDeleted bool
		deletedAt timestampColumn
		createdAt timestampColumn
	)
	if err := row.Scan(&rawID, &provider, &key, &isDeleted, &deletedAt, &createdAt); err != nil {
		return nil, err
	}
	userID, err := id.ParseUserID(rawID)
	if err != nil {
		return nil, fmt.Errorf("stored user id %q: %w", rawID, err)
	}
	if !createdAt.Valid {
		return nil, fmt.Errorf("user %s has no created_at", rawID)
	}
	u := &models.User{
		ID:          userID,
		Provider:    identity.Provider(provider),
		IdentityKey: identity.Key(key),
		IsDeleted:   isDeleted,
		CreatedAt:   createdAt.Time,
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		u.DeletedAt = &t
	}
	return u, nil
}

func rowOrNil(u *models.User) query.Row {
	if u == nil {
		return nil
	}
	return u
}

// timestampColumn scans native timestamps and SQLite's fixed-width text.
type timestampColumn struct {
	Time  time.Time
	Valid bool
}

func (c *timestampColumn) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		c.Time, c.Valid = time.Time{}, false
		return nil
	case time.Time:
		c.Time, c.Valid = models.Timestamp(v), true
		return nil
	case string:
		return c.parse(v)
	case []byte:
		return c.parse(string(v))
	}
	return fmt.Errorf("unsupported timestamp value %T", src)
}

func (c *timestampColumn) parse(s string) error {
	t, err := time.Parse(query.SQLiteTimeLayout, s)
	if err != nil {
		t, err = time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return fmt.Errorf("parse timestamp %q: %w", s, err)
		}
	}
	c.Time, c.Valid = models.Timestamp(t), true
	return nil
}

package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/platform/sentinel"
)

// InMemory is a map-backed user store for tests and local runs. It enforces
// the same constraints as the SQL schema: active identity keys are unique and
// isDeleted agrees with deletedAt.
type InMemory struct {
	// writeMu serializes writers, transactions included.
	writeMu sync.Mutex
	mu      sync.RWMutex
	users   memTable
}

func NewInMemory() *InMemory {
	return &InMemory{users: memTable{}}
}

func (s *InMemory) Find(_ context.Context, q query.Query) ([]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.find(q)
}

func (s *InMemory) Count(_ context.Context, where query.Predicate) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.users.count(where), nil
}

func (s *InMemory) Insert(_ context.Context, u *models.User) (*models.User, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.insert(u)
}

func (s *InMemory) Update(_ context.Context, userID id.UserID, patch models.Patch) (*models.User, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.users.update(userID, patch)
}

// InMemoryTx gives each transaction a private copy of the table and swaps it
// in on success, so a failed transaction leaves no trace.
type InMemoryTx struct {
	store   *InMemory
	timeout time.Duration
}

func NewInMemoryTx(store *InMemory) *InMemoryTx {
	return &InMemoryTx{store: store}
}

// WithTimeout bounds transactions whose context has no deadline.
func (t *InMemoryTx) WithTimeout(d time.Duration) *InMemoryTx {
	t.timeout = d
	return t
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreTimeout, "transaction aborted: context cancelled")
	}
	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.store.writeMu.Lock()
	defer t.store.writeMu.Unlock()

	t.store.mu.RLock()
	staged := t.store.users.clone()
	t.store.mu.RUnlock()

	if err := fn(&memTxStore{users: staged}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeStoreTimeout, "transaction aborted: deadline exceeded")
	}

	t.store.mu.Lock()
	t.store.users = staged
	t.store.mu.Unlock()
	return nil
}

// memTxStore is the Store handed to a transaction body.
type memTxStore struct {
	users memTable
}

func (s *memTxStore) Find(_ context.Context, q query.Query) ([]*models.User, error) {
	return s.users.find(q)
}

func (s *memTxStore) Count(_ context.Context, where query.Predicate) (int, error) {
	return s.users.count(where), nil
}

func (s *memTxStore) Insert(_ context.Context, u *models.User) (*models.User, error) {
	return s.users.insert(u)
}

func (s *memTxStore) Update(_ context.Context, userID id.UserID, patch models.Patch) (*models.User, error) {
	return s.users.update(userID, patch)
}

// memTable holds records by value identity; stored pointers are never handed
// out or mutated in place.
type memTable map[id.UserID]*models.User

func (t memTable) clone() memTable {
	c := make(memTable, len(t))
	for k, v := range t {
		c[k] = v
	}
	return c
}

func (t memTable) find(q query.Query) ([]*models.User, error) {
	where := q.Where
	if where == nil {
		where = query.MatchAll
	}
	if q.After != "" {
		cursorID, err := id.ParseUserID(q.After)
		if err != nil {
			return nil, query.ErrCursorNotFound
		}
		cursor, ok := t[cursorID]
		if !ok {
			return nil, query.ErrCursorNotFound
		}
		where = query.And(where, q.OrderBy.After(cursor))
	}

	var out []*models.User
	for _, u := range t {
		if where.Matches(u) {
			out = append(out, u)
		}
	}
	slices.SortFunc(out, func(a, b *models.User) int { return q.OrderBy.Compare(a, b) })

	if q.Offset >= len(out) {
		return []*models.User{}, nil
	}
	out = out[q.Offset:]
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	result := make([]*models.User, len(out))
	for i, u := range out {
		result[i] = u.Clone()
	}
	return result, nil
}

func (t memTable) count(where query.Predicate) int {
	if where == nil {
		where = query.MatchAll
	}
	n := 0
	for _, u := range t {
		if where.Matches(u) {
			n++
		}
	}
	return n
}

func (t memTable) insert(u *models.User) (*models.User, error) {
	rec := u.Clone()
	if rec.ID.IsNil() {
		rec.ID = id.NewUserID()
	}
	if _, exists := t[rec.ID]; exists {
		return nil, fmt.Errorf("insert user: id %s: %w", rec.ID, sentinel.ErrConflict)
	}
	if err := t.check(rec); err != nil {
		return nil, fmt.Errorf("insert user: %w", err)
	}
	t[rec.ID] = rec
	return rec.Clone(), nil
}

func (t memTable) update(userID id.UserID, patch models.Patch) (*models.User, error) {
	cur, ok := t[userID]
	if !ok {
		return nil, fmt.Errorf("update user %s: %w", userID, sentinel.ErrNotFound)
	}
	rec := cur.Clone()
	patch.Apply(rec)
	if err := t.check(rec); err != nil {
		return nil, fmt.Errorf("update user %s: %w", userID, err)
	}
	t[userID] = rec
	return rec.Clone(), nil
}

// check enforces the schema constraints against every other row.
func (t memTable) check(rec *models.User) error {
	if rec.IsDeleted != (rec.DeletedAt != nil) {
		return fmt.Errorf("deleted flag and timestamp disagree: %w", sentinel.ErrInvalid)
	}
	if rec.IdentityKey == "" || !rec.Provider.Valid() {
		return fmt.Errorf("provider and identity key are required: %w", sentinel.ErrInvalid)
	}
	if rec.IsDeleted {
		return nil
	}
	for otherID, other := range t {
		if otherID != rec.ID && !other.IsDeleted && other.IdentityKey == rec.IdentityKey {
			return fmt.Errorf("active identity already exists: %w", sentinel.ErrConflict)
		}
	}
	return nil
}

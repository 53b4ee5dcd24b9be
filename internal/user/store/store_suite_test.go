package store

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/platform/sentinel"
)

var base = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// behaviourSuite holds the store contract. Each backend embeds it and
// provides open.
type behaviourSuite struct {
	suite.Suite
	ctx   context.Context
	open  func() (service.Store, service.StoreTx)
	store service.Store
	tx    service.StoreTx
}

func (s *behaviourSuite) SetupTest() {
	s.ctx = context.Background()
	s.store, s.tx = s.open()
}

func (s *behaviourSuite) insert(provider identity.Provider, key string, minute int) *models.User {
	u, err := models.NewUser(provider, identity.Key(key), base.Add(time.Duration(minute)*time.Minute))
	s.Require().NoError(err)
	created, err := s.store.Insert(s.ctx, u)
	s.Require().NoError(err)
	return created
}

func (s *behaviourSuite) softDelete(u *models.User, minute int) *models.User {
	s.Require().NoError(u.SoftDelete(base.Add(time.Duration(minute) * time.Minute)))
	updated, err := s.store.Update(s.ctx, u.ID, u.Patch())
	s.Require().NoError(err)
	return updated
}

func (s *behaviourSuite) ids(users []*models.User) []id.UserID {
	out := make([]id.UserID, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func (s *behaviourSuite) TestInsertAndFind() {
	s.Run("assigns an id and round-trips every column", func() {
		created := s.insert(identity.ProviderGoogle, "key-round-trip", 0)
		s.False(created.ID.IsNil())

		rows, err := s.store.Find(s.ctx, query.Query{
			Where: query.StringEq{Field: query.FieldID, Value: created.ID.String()},
		})
		s.Require().NoError(err)
		s.Require().Len(rows, 1)
		got := rows[0]
		s.Equal(created.ID, got.ID)
		s.Equal(identity.ProviderGoogle, got.Provider)
		s.Equal(identity.Key("key-round-trip"), got.IdentityKey)
		s.False(got.IsDeleted)
		s.Nil(got.DeletedAt)
		s.True(base.Equal(got.CreatedAt), "createdAt %s", got.CreatedAt)
	})

	s.Run("returns an empty slice when nothing matches", func() {
		rows, err := s.store.Find(s.ctx, query.Query{Where: query.MatchNone})
		s.Require().NoError(err)
		s.NotNil(rows)
		s.Empty(rows)
	})
}

func (s *behaviourSuite) TestActiveIdentityUniqueness() {
	first := s.insert(identity.ProviderKakao, "shared-key", 0)

	s.Run("rejects a second active holder", func() {
		u, err := models.NewUser(identity.ProviderKakao, "shared-key", base)
		s.Require().NoError(err)
		_, err = s.store.Insert(s.ctx, u)
		s.ErrorIs(err, sentinel.ErrConflict)
	})

	s.Run("soft-deleted holders do not count", func() {
		s.softDelete(first, 1)
		second := s.insert(identity.ProviderKakao, "shared-key", 2)
		s.NotEqual(first.ID, second.ID)
	})

	s.Run("reactivating the old holder conflicts", func() {
		restored := first.Clone()
		restored.IsDeleted = false
		restored.DeletedAt = nil
		_, err := s.store.Update(s.ctx, first.ID, restored.Patch())
		s.ErrorIs(err, sentinel.ErrConflict)
	})
}

func (s *behaviourSuite) TestUpdate() {
	s.Run("rejects a flag without a timestamp", func() {
		u := s.insert(identity.ProviderNaver, "inconsistent", 0)
		_, err := s.store.Update(s.ctx, u.ID, models.Patch{IsDeleted: true})
		s.ErrorIs(err, sentinel.ErrInvalid)
	})

	s.Run("reports unknown ids as not found", func() {
		now := base
		_, err := s.store.Update(s.ctx, id.NewUserID(), models.Patch{IsDeleted: true, DeletedAt: &now})
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("persists soft delete", func() {
		u := s.insert(identity.ProviderNaver, "to-delete", 0)
		updated := s.softDelete(u, 5)
		s.True(updated.IsDeleted)
		s.Require().NotNil(updated.DeletedAt)
		s.True(base.Add(5 * time.Minute).Equal(*updated.DeletedAt))
	})
}

func (s *behaviourSuite) TestKeysetPaging() {
	var created []*models.User
	for i := range 5 {
		created = append(created, s.insert(identity.ProviderGitHub, "page-"+string(rune('a'+i)), i))
	}
	order, err := query.CompileSort(nil)
	s.Require().NoError(err)

	s.Run("orders by createdAt desc", func() {
		rows, err := s.store.Find(s.ctx, query.Query{OrderBy: order, Limit: 2})
		s.Require().NoError(err)
		s.Equal([]id.UserID{created[4].ID, created[3].ID}, s.ids(rows))
	})

	s.Run("continues after the cursor", func() {
		rows, err := s.store.Find(s.ctx, query.Query{OrderBy: order, Limit: 2, After: created[3].ID.String()})
		s.Require().NoError(err)
		s.Equal([]id.UserID{created[2].ID, created[1].ID}, s.ids(rows))
	})

	s.Run("applies offset after the cursor", func() {
		rows, err := s.store.Find(s.ctx, query.Query{OrderBy: order, Offset: 1, After: created[3].ID.String()})
		s.Require().NoError(err)
		s.Equal([]id.UserID{created[1].ID, created[0].ID}, s.ids(rows))
	})

	s.Run("unknown cursor", func() {
		_, err := s.store.Find(s.ctx, query.Query{OrderBy: order, After: id.NewUserID().String()})
		s.ErrorIs(err, query.ErrCursorNotFound)
	})

	s.Run("malformed cursor", func() {
		_, err := s.store.Find(s.ctx, query.Query{OrderBy: order, After: "not-a-uuid"})
		s.ErrorIs(err, query.ErrCursorNotFound)
	})
}

func (s *behaviourSuite) TestNullableOrdering() {
	active := s.insert(identity.ProviderGitHub, "null-active", 0)
	early := s.softDelete(s.insert(identity.ProviderGitHub, "null-early", 1), 10)
	late := s.softDelete(s.insert(identity.ProviderGitHub, "null-late", 2), 20)

	order, err := query.CompileSort([]query.Sort{{Field: query.FieldDeletedAt, Direction: query.Asc}})
	s.Require().NoError(err)

	rows, err := s.store.Find(s.ctx, query.Query{OrderBy: order})
	s.Require().NoError(err)
	s.Equal([]id.UserID{early.ID, late.ID, active.ID}, s.ids(rows), "NULL sorts last ascending")

	rows, err = s.store.Find(s.ctx, query.Query{OrderBy: order, After: late.ID.String()})
	s.Require().NoError(err)
	s.Equal([]id.UserID{active.ID}, s.ids(rows))

	from := base.Add(15 * time.Minute)
	where, err := query.CompileFilter(&query.Filter{DeletedAt: &query.DateRange{Gte: &from}})
	s.Require().NoError(err)
	n, err := s.store.Count(s.ctx, where)
	s.Require().NoError(err)
	s.Equal(1, n)
}

func (s *behaviourSuite) TestCount() {
	s.insert(identity.ProviderGoogle, "count-1", 0)
	s.softDelete(s.insert(identity.ProviderGoogle, "count-2", 1), 2)
	s.insert(identity.ProviderKakao, "count-3", 3)

	n, err := s.store.Count(s.ctx, query.MatchAll)
	s.Require().NoError(err)
	s.Equal(3, n)

	n, err = s.store.Count(s.ctx, query.BoolEq{Field: query.FieldIsDeleted, Value: false})
	s.Require().NoError(err)
	s.Equal(2, n)

	n, err = s.store.Count(s.ctx, query.MatchNone)
	s.Require().NoError(err)
	s.Equal(0, n)
}

func (s *behaviourSuite) TestRunInTx() {
	s.Run("rolls back when the body fails", func() {
		boom := dErrors.New(dErrors.CodeValidation, "boom")
		err := s.tx.RunInTx(s.ctx, func(st service.Store) error {
			u, err := models.NewUser(identity.ProviderGoogle, "rolled-back", base)
			s.Require().NoError(err)
			if _, err := st.Insert(s.ctx, u); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		n, err := s.store.Count(s.ctx, query.StringEq{Field: query.FieldIdentityKey, Value: "rolled-back"})
		s.Require().NoError(err)
		s.Zero(n)
	})

	s.Run("commits on success", func() {
		err := s.tx.RunInTx(s.ctx, func(st service.Store) error {
			u, err := models.NewUser(identity.ProviderGoogle, "committed", base)
			s.Require().NoError(err)
			_, err = st.Insert(s.ctx, u)
			return err
		})
		s.Require().NoError(err)

		n, err := s.store.Count(s.ctx, query.StringEq{Field: query.FieldIdentityKey, Value: "committed"})
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("refuses a cancelled context", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		called := false
		err := s.tx.RunInTx(ctx, func(service.Store) error {
			called = true
			return nil
		})
		s.True(dErrors.HasCode(err, dErrors.CodeStoreTimeout))
		s.False(called)
	})
}

// TestConcurrentCreate drives the service so the duplicate check and the
// unique index are exercised together.
func (s *behaviourSuite) TestConcurrentCreate() {
	svc := service.New(s.store, s.tx)
	const goroutines = 20

	var wg sync.WaitGroup
	var successCount, duplicateCount atomic.Int32
	for range goroutines {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Create(s.ctx, identity.ProviderGitHub, "octocat")
			switch {
			case err == nil:
				successCount.Add(1)
			case dErrors.HasCode(err, dErrors.CodeDuplicateIdentity):
				duplicateCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), successCount.Load(), "exactly one create should succeed")
	s.Equal(int32(goroutines-1), duplicateCount.Load(), "all others should see a duplicate")

	found, err := svc.FindByIdentity(s.ctx, identity.ProviderGitHub, "octocat")
	s.Require().NoError(err)
	s.NotNil(found)
}

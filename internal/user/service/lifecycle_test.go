package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	"github.com/changeuikim/vercel-kayce/internal/query"
	"github.com/changeuikim/vercel-kayce/internal/user/models"
	"github.com/changeuikim/vercel-kayce/internal/user/service"
	"github.com/changeuikim/vercel-kayce/internal/user/store"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
	"github.com/changeuikim/vercel-kayce/pkg/requestcontext"
)

// LifecycleSuite runs the service against the in-memory store.
type LifecycleSuite struct {
	suite.Suite
	service *service.Service
	clock   time.Time
}

func TestLifecycleSuite(t *testing.T) {
	suite.Run(t, new(LifecycleSuite))
}

func (s *LifecycleSuite) SetupTest() {
	st := store.NewInMemory()
	s.service = service.New(st, store.NewInMemoryTx(st))
	s.clock = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

// at returns a context whose clock is advanced one minute per call, so
// createdAt values are distinct and ordered by creation.
func (s *LifecycleSuite) at() context.Context {
	s.clock = s.clock.Add(time.Minute)
	return requestcontext.WithTime(context.Background(), s.clock)
}

func (s *LifecycleSuite) create(raw string) *models.User {
	u, err := s.service.Create(s.at(), identity.ProviderGitHub, raw)
	s.Require().NoError(err)
	return u
}

func (s *LifecycleSuite) TestCreateTwice() {
	first := s.create("octocat")

	_, err := s.service.Create(s.at(), identity.ProviderGitHub, "octocat")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity))

	_, err = s.service.Create(s.at(), identity.ProviderGitHub, "  octocat ")
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity), "surrounding whitespace is not part of the identity")

	found, err := s.service.FindByID(s.at(), first.ID, false)
	s.Require().NoError(err)
	s.True(found.IsActive())

	other, err := s.service.Create(s.at(), identity.ProviderGoogle, "octocat")
	s.Require().NoError(err, "the same raw identity on another provider is a different user")
	s.NotEqual(first.IdentityKey, other.IdentityKey)
}

func (s *LifecycleSuite) TestSoftDeleteAndRestore() {
	u := s.create("lifecycle")

	deleted, err := s.service.SoftDelete(s.at(), u.ID)
	s.Require().NoError(err)
	s.True(deleted.IsDeleted)
	s.Require().NotNil(deleted.DeletedAt)
	s.True(s.clock.Equal(*deleted.DeletedAt))

	_, err = s.service.SoftDelete(s.at(), u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeEntityNotFound), "second delete fails")

	restored, err := s.service.Restore(s.at(), u.ID)
	s.Require().NoError(err)
	s.False(restored.IsDeleted)
	s.Nil(restored.DeletedAt)

	_, err = s.service.Restore(s.at(), u.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeEntityNotFound), "restoring an active user fails")

	_, err = s.service.SoftDelete(s.at(), id.NewUserID())
	s.True(dErrors.HasCode(err, dErrors.CodeEntityNotFound))
}

func (s *LifecycleSuite) TestRecreateAfterSoftDelete() {
	a := s.create("returning")
	_, err := s.service.SoftDelete(s.at(), a.ID)
	s.Require().NoError(err)

	b, err := s.service.Create(s.at(), identity.ProviderGitHub, "returning")
	s.Require().NoError(err)
	s.NotEqual(a.ID, b.ID)
	s.Equal(a.IdentityKey, b.IdentityKey)

	found, err := s.service.FindByIdentity(s.at(), identity.ProviderGitHub, "returning")
	s.Require().NoError(err)
	s.Equal(b.ID, found.ID)

	_, err = s.service.Restore(s.at(), a.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeDuplicateIdentity), "restore may not create a second active holder")
}

func (s *LifecycleSuite) TestFindByIdentity() {
	s.Run("no match", func() {
		u, err := s.service.FindByIdentity(s.at(), identity.ProviderNaver, "nobody")
		s.Require().NoError(err)
		s.Nil(u)
	})

	s.Run("blank input", func() {
		_, err := s.service.FindByIdentity(s.at(), identity.ProviderNaver, "")
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidIdentity))
	})
}

func (s *LifecycleSuite) TestPagination() {
	var created []*models.User
	for i := range 15 {
		created = append(created, s.create("page-user-"+string(rune('a'+i))))
	}
	take := 10

	first, err := s.service.FetchPage(s.at(), service.SearchRequest{Pagination: query.PageRequest{Take: &take}})
	s.Require().NoError(err)
	s.Len(first.Items, 10)
	s.True(first.HasNextPage)
	s.Equal(15, first.TotalCount)
	s.Equal(created[14].ID, first.Items[0].ID, "newest first by default")

	second, err := s.service.FetchPage(s.at(), service.SearchRequest{Pagination: query.PageRequest{
		Take:   &take,
		Cursor: first.Items[9].ID.String(),
	}})
	s.Require().NoError(err)
	s.Len(second.Items, 5)
	s.False(second.HasNextPage)
	s.Equal(15, second.TotalCount)
	s.Equal(created[0].ID, second.Items[4].ID)

	zero := 0
	empty, err := s.service.FetchPage(s.at(), service.SearchRequest{Pagination: query.PageRequest{Take: &zero}})
	s.Require().NoError(err)
	s.Empty(empty.Items)
	s.True(empty.HasNextPage)
}

func (s *LifecycleSuite) TestSortAscendingAcrossPages() {
	for i := range 7 {
		s.create("sorted-" + string(rune('a'+i)))
	}
	take := 3
	req := service.SearchRequest{
		Sort:       []query.Sort{{Field: query.FieldCreatedAt, Direction: query.Asc}},
		Pagination: query.PageRequest{Take: &take},
	}

	var seen []time.Time
	for {
		page, err := s.service.FetchPage(s.at(), req)
		s.Require().NoError(err)
		for _, u := range page.Items {
			seen = append(seen, u.CreatedAt)
		}
		if !page.HasNextPage {
			break
		}
		req.Pagination.Cursor = page.Items[len(page.Items)-1].ID.String()
	}

	s.Len(seen, 7)
	for i := 1; i < len(seen); i++ {
		s.False(seen[i].Before(seen[i-1]), "createdAt must not decrease")
	}
}

func (s *LifecycleSuite) TestFilterDeletedSince() {
	early := s.create("deleted-early")
	late := s.create("deleted-late")
	s.create("still-active")

	_, err := s.service.SoftDelete(s.at(), early.ID)
	s.Require().NoError(err)
	threshold := s.clock.Add(30 * time.Second)
	_, err = s.service.SoftDelete(s.at(), late.ID)
	s.Require().NoError(err)

	deleted := true
	page, err := s.service.FetchPage(s.at(), service.SearchRequest{Filter: &query.Filter{
		IsDeleted: &deleted,
		DeletedAt: &query.DateRange{Gte: &threshold},
	}})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 1)
	s.Equal(late.ID, page.Items[0].ID)
	s.Equal(1, page.TotalCount)

	page, err = s.service.FetchPage(s.at(), service.SearchRequest{})
	s.Require().NoError(err)
	s.Equal(1, page.TotalCount, "soft-deleted users are hidden by default")
}

func (s *LifecycleSuite) TestCursorFilteredOut() {
	a := s.create("cursor-a")
	b := s.create("cursor-b")
	c := s.create("cursor-c")
	take := 1

	page, err := s.service.FetchPage(s.at(), service.SearchRequest{Pagination: query.PageRequest{Take: &take}})
	s.Require().NoError(err)
	s.Equal(c.ID, page.Items[0].ID)

	_, err = s.service.SoftDelete(s.at(), c.ID)
	s.Require().NoError(err)

	take = 10
	page, err = s.service.FetchPage(s.at(), service.SearchRequest{Pagination: query.PageRequest{Take: &take, Cursor: c.ID.String()}})
	s.Require().NoError(err)
	s.Require().Len(page.Items, 2)
	s.Equal([]id.UserID{b.ID, a.ID}, []id.UserID{page.Items[0].ID, page.Items[1].ID})

	_, err = s.service.FetchPage(s.at(), service.SearchRequest{Pagination: query.PageRequest{Cursor: id.NewUserID().String()}})
	s.True(dErrors.HasCode(err, dErrors.CodeCursorNotFound))
}

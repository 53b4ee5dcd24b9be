package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/suite"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// sliceReader evaluates queries over a fixed slice.
type sliceReader struct {
	rows     []testRow
	findErr  error
	countErr error
	lastFind Query
}

func (r *sliceReader) Find(_ context.Context, q Query) ([]testRow, error) {
	r.lastFind = q
	if r.findErr != nil {
		return nil, r.findErr
	}
	where := q.Where
	if q.After != "" {
		i := slices.IndexFunc(r.rows, func(row testRow) bool { return row.id == q.After })
		if i < 0 {
			return nil, ErrCursorNotFound
		}
		where = And(where, q.OrderBy.After(r.rows[i]))
	}
	var out []testRow
	for _, row := range r.rows {
		if where.Matches(row) {
			out = append(out, row)
		}
	}
	slices.SortFunc(out, func(a, b testRow) int { return q.OrderBy.Compare(a, b) })
	if q.Offset >= len(out) {
		return nil, nil
	}
	out = out[q.Offset:]
	if len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *sliceReader) Count(_ context.Context, where Predicate) (int, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}
	n := 0
	for _, row := range r.rows {
		if where.Matches(row) {
			n++
		}
	}
	return n, nil
}

type PageSuite struct {
	suite.Suite
	ctx    context.Context
	reader *sliceReader
	order  Ordering
}

func TestPageSuite(t *testing.T) {
	suite.Run(t, new(PageSuite))
}

func (s *PageSuite) SetupTest() {
	s.ctx = context.Background()
	s.reader = &sliceReader{}
	for i := 0; i < 15; i++ {
		s.reader.rows = append(s.reader.rows, testRow{id: fmt.Sprintf("id-%02d", i), createdAt: at(i)})
	}
	var err error
	s.order, err = CompileSort([]Sort{{Field: FieldCreatedAt, Direction: Asc}})
	s.Require().NoError(err)
}

func (s *PageSuite) TestTwoPages() {
	first, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Take: ptr(10)}, 0)
	s.Require().NoError(err)
	s.Len(first.Items, 10)
	s.True(first.HasNextPage)
	s.Equal(15, first.TotalCount)
	s.Equal(11, s.reader.lastFind.Limit)

	last := first.Items[len(first.Items)-1]
	second, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Take: ptr(10), Cursor: last.id}, 0)
	s.Require().NoError(err)
	s.Len(second.Items, 5)
	s.False(second.HasNextPage)
	s.Equal(15, second.TotalCount)
	s.Equal("id-10", second.Items[0].id)

	all := append(slices.Clone(first.Items), second.Items...)
	s.True(slices.IsSortedFunc(all, func(a, b testRow) int { return a.createdAt.Compare(b.createdAt) }))
}

func (s *PageSuite) TestTakeZero() {
	page, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Take: ptr(0)}, 0)
	s.Require().NoError(err)
	s.Empty(page.Items)
	s.NotNil(page.Items)
	s.True(page.HasNextPage)
	s.Equal(15, page.TotalCount)

	page, err = FetchPage[testRow](s.ctx, s.reader, MatchNone, s.order, PageRequest{Take: ptr(0)}, 0)
	s.Require().NoError(err)
	s.False(page.HasNextPage)
	s.Equal(0, page.TotalCount)
}

func (s *PageSuite) TestDefaultsAndLimits() {
	s.Run("absent take defaults to ten", func() {
		page, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{}, 0)
		s.Require().NoError(err)
		s.Len(page.Items, DefaultTake)
	})

	s.Run("take above max is rejected", func() {
		_, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Take: ptr(6)}, 5)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("negative take is rejected", func() {
		_, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Take: ptr(-1)}, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("negative skip is rejected", func() {
		_, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Skip: -1}, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *PageSuite) TestSkipAppliesAfterCursor() {
	page, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Take: ptr(2), Skip: 3, Cursor: "id-04"}, 0)
	s.Require().NoError(err)
	s.Equal([]string{"id-08", "id-09"}, ids(page.Items))
	s.True(page.HasNextPage)
}

func (s *PageSuite) TestCursor() {
	s.Run("unknown cursor", func() {
		_, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{Cursor: "missing"}, 0)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeCursorNotFound))
		de, ok := dErrors.As(err)
		s.Require().True(ok)
		s.Equal("missing", de.Meta["cursor"])
	})

	s.Run("cursor excluded by filter still positions the page", func() {
		where := Compare{Field: FieldID, Op: OpGt, Value: "id-09"}
		page, err := FetchPage[testRow](s.ctx, s.reader, where, s.order, PageRequest{Cursor: "id-03"}, 0)
		s.Require().NoError(err)
		s.Equal([]string{"id-10", "id-11", "id-12", "id-13", "id-14"}, ids(page.Items))
		s.Equal(5, page.TotalCount)
	})
}

func (s *PageSuite) TestStoreErrorsPropagate() {
	boom := errors.New("boom")

	s.reader.countErr = boom
	_, err := FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{}, 0)
	s.Require().ErrorIs(err, boom)

	s.reader.countErr = nil
	s.reader.findErr = boom
	_, err = FetchPage[testRow](s.ctx, s.reader, MatchAll, s.order, PageRequest{}, 0)
	s.Require().ErrorIs(err, boom)
}

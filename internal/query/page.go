package query

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

const (
	DefaultTake    = 10
	DefaultMaxTake = 100
)

// ErrCursorNotFound is returned by readers when Query.After names no row.
var ErrCursorNotFound = errors.New("cursor row not found")

// PageRequest is the caller's pagination input. Cursor is the id of the last
// row of the previous page and is exclusive. Skip is applied after the cursor.
type PageRequest struct {
	Take   *int   `json:"take,omitempty" yaml:"take,omitempty"`
	Skip   int    `json:"skip,omitempty" yaml:"skip,omitempty"`
	Cursor string `json:"cursor,omitempty" yaml:"cursor,omitempty"`
}

// Resolve returns the effective page size.
func (r PageRequest) Resolve(maxTake int) (int, error) {
	if maxTake <= 0 {
		maxTake = DefaultMaxTake
	}
	if r.Skip < 0 {
		return 0, dErrors.New(dErrors.CodeValidation, "skip must not be negative").WithMeta("skip", r.Skip)
	}
	if r.Take == nil {
		return min(DefaultTake, maxTake), nil
	}
	take := *r.Take
	if take < 0 || take > maxTake {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("take must be between 0 and %d", maxTake)).
			WithMeta("take", take).WithMeta("maxTake", maxTake)
	}
	return take, nil
}

// Query is the descriptor handed to a Reader.
type Query struct {
	Where   Predicate
	OrderBy Ordering
	Limit   int
	Offset  int
	// After is the id of the cursor row; rows strictly after it in OrderBy
	// are returned. Empty means start of sequence.
	After     string
	ForUpdate bool
}

// Reader is the read side of a store.
type Reader[T any] interface {
	Find(ctx context.Context, q Query) ([]T, error)
	Count(ctx context.Context, where Predicate) (int, error)
}

// Page is one page of results.
type Page[T any] struct {
	Items       []T  `json:"items" yaml:"items"`
	TotalCount  int  `json:"totalCount" yaml:"totalCount"`
	HasNextPage bool `json:"hasNextPage" yaml:"hasNextPage"`
}

// FetchPage reads take+1 rows to learn whether another page exists and counts
// the matching rows concurrently. The count is not taken in the same snapshot
// as the rows.
func FetchPage[T any](ctx context.Context, r Reader[T], where Predicate, order Ordering, req PageRequest, maxTake int) (Page[T], error) {
	take, err := req.Resolve(maxTake)
	if err != nil {
		return Page[T]{}, err
	}
	if where == nil {
		where = MatchAll
	}

	var (
		rows  []T
		total int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		rows, err = r.Find(gctx, Query{
			Where:   where,
			OrderBy: order,
			Limit:   take + 1,
			Offset:  req.Skip,
			After:   req.Cursor,
		})
		return err
	})
	g.Go(func() error {
		var err error
		total, err = r.Count(gctx, where)
		return err
	})
	if err := g.Wait(); err != nil {
		if errors.Is(err, ErrCursorNotFound) {
			return Page[T]{}, dErrors.Wrap(err, dErrors.CodeCursorNotFound, "").WithMeta("cursor", req.Cursor)
		}
		return Page[T]{}, err
	}

	page := Page[T]{Items: rows, TotalCount: total}
	if len(rows) > take {
		page.HasNextPage = true
		page.Items = rows[:take]
	}
	if page.Items == nil {
		page.Items = []T{}
	}
	return page, nil
}

package query

import (
	"time"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// DefaultMaxFilterDepth bounds AND/OR nesting.
const DefaultMaxFilterDepth = 20

// DateRange is an inclusive time range. Either bound may be omitted.
type DateRange struct {
	Gte *time.Time `json:"gte,omitempty" yaml:"gte,omitempty"`
	Lte *time.Time `json:"lte,omitempty" yaml:"lte,omitempty"`
}

func (r *DateRange) empty() bool {
	return r == nil || (r.Gte == nil && r.Lte == nil)
}

// predicate truncates both bounds to the microsecond precision every store
// keeps, so in-memory and SQL evaluation agree at the boundary.
func (r *DateRange) predicate(f Field) TimeRange {
	return TimeRange{Field: f, Gte: microseconds(r.Gte), Lte: microseconds(r.Lte)}
}

func microseconds(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC().Truncate(time.Microsecond)
	return &v
}

// Filter is the caller-facing filter tree. Leaves set on one node are
// conjoined with each other and with the node's AND and OR children.
//
// An empty AND list matches everything; an empty (non-nil) OR list matches
// nothing. A nil OR list places no constraint.
type Filter struct {
	IsDeleted *bool      `json:"isDeleted,omitempty" yaml:"isDeleted,omitempty"`
	CreatedAt *DateRange `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	DeletedAt *DateRange `json:"deletedAt,omitempty" yaml:"deletedAt,omitempty"`
	And       []Filter   `json:"AND,omitempty" yaml:"AND,omitempty"`
	Or        []Filter   `json:"OR,omitempty" yaml:"OR,omitempty"`
}

// ConstrainsDeletion reports whether any node of the tree mentions isDeleted
// or bounds deletedAt. Such filters opt out of the implicit active-only scope.
func (f *Filter) ConstrainsDeletion() bool {
	if f == nil {
		return false
	}
	if f.IsDeleted != nil || !f.DeletedAt.empty() {
		return true
	}
	for i := range f.And {
		if f.And[i].ConstrainsDeletion() {
			return true
		}
	}
	for i := range f.Or {
		if f.Or[i].ConstrainsDeletion() {
			return true
		}
	}
	return false
}

type compileConfig struct {
	maxDepth int
}

// CompileOption tunes CompileFilter.
type CompileOption func(*compileConfig)

// WithMaxDepth overrides DefaultMaxFilterDepth. Non-positive values are ignored.
func WithMaxDepth(n int) CompileOption {
	return func(c *compileConfig) {
		if n > 0 {
			c.maxDepth = n
		}
	}
}

// CompileFilter turns f into a Predicate. A nil filter matches everything.
func CompileFilter(f *Filter, opts ...CompileOption) (Predicate, error) {
	cfg := compileConfig{maxDepth: DefaultMaxFilterDepth}
	for _, opt := range opts {
		opt(&cfg)
	}
	if f == nil {
		return MatchAll, nil
	}
	return compileNode(f, 1, cfg.maxDepth)
}

func compileNode(f *Filter, depth, maxDepth int) (Predicate, error) {
	if depth > maxDepth {
		return nil, dErrors.New(dErrors.CodeFilterTooComplex, "").WithMeta("maxDepth", maxDepth)
	}

	terms := make([]Predicate, 0, 5)
	if f.IsDeleted != nil {
		terms = append(terms, BoolEq{Field: FieldIsDeleted, Value: *f.IsDeleted})
	}
	if !f.CreatedAt.empty() {
		terms = append(terms, f.CreatedAt.predicate(FieldCreatedAt))
	}
	if !f.DeletedAt.empty() {
		terms = append(terms, f.DeletedAt.predicate(FieldDeletedAt))
	}

	if f.And != nil {
		children := make([]Predicate, 0, len(f.And))
		for i := range f.And {
			p, err := compileNode(&f.And[i], depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			children = append(children, p)
		}
		terms = append(terms, And(children...))
	}
	if f.Or != nil {
		children := make([]Predicate, 0, len(f.Or))
		for i := range f.Or {
			p, err := compileNode(&f.Or[i], depth+1, maxDepth)
			if err != nil {
				return nil, err
			}
			children = append(children, p)
		}
		terms = append(terms, Or(children...))
	}

	return And(terms...), nil
}

package query

import (
	"fmt"
	"strings"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// Sort is one caller-supplied sort key.
type Sort struct {
	Field     Field     `json:"field" yaml:"field"`
	Direction Direction `json:"direction" yaml:"direction"`
}

// Key is a validated sort key.
type Key struct {
	Field     Field
	Direction Direction
}

// Ordering is a total order over rows: the caller's keys followed by id ASC.
type Ordering struct {
	keys []Key
}

// DefaultSort is applied when the caller supplies no sort keys.
var DefaultSort = []Sort{{Field: FieldCreatedAt, Direction: Desc}}

// CompileSort validates specs and appends the id tiebreaker.
func CompileSort(specs []Sort) (Ordering, error) {
	if len(specs) == 0 {
		specs = DefaultSort
	}
	keys := make([]Key, 0, len(specs)+1)
	seen := make(map[Field]bool, len(specs))
	for _, s := range specs {
		if !s.Field.Sortable() {
			return Ordering{}, dErrors.New(dErrors.CodeValidation, "field is not sortable").WithMeta("field", string(s.Field))
		}
		if seen[s.Field] {
			return Ordering{}, dErrors.New(dErrors.CodeValidation, "field appears more than once in sort").WithMeta("field", string(s.Field))
		}
		seen[s.Field] = true
		dir, err := ParseDirection(string(s.Direction))
		if err != nil {
			return Ordering{}, err
		}
		keys = append(keys, Key{Field: s.Field, Direction: dir})
	}
	keys = append(keys, Key{Field: FieldID, Direction: Asc})
	return Ordering{keys: keys}, nil
}

// ParseDirection accepts asc/desc in any letter case.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case Asc:
		return Asc, nil
	case Desc:
		return Desc, nil
	}
	return "", dErrors.New(dErrors.CodeValidation, "sort direction must be asc or desc").WithMeta("direction", s)
}

// Keys returns the keys in priority order, tiebreaker included.
func (o Ordering) Keys() []Key {
	out := make([]Key, len(o.keys))
	copy(out, o.keys)
	return out
}

func (o Ordering) String() string {
	parts := make([]string, len(o.keys))
	for i, k := range o.keys {
		parts[i] = fmt.Sprintf("%s %s", k.Field, k.Direction)
	}
	return strings.Join(parts, ",")
}

// Compare orders a before b (<0), after b (>0) or equal (0). NULL sorts as
// the largest value.
func (o Ordering) Compare(a, b Row) int {
	for _, k := range o.keys {
		c := compareField(k.Field, a, b)
		if k.Direction == Desc {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

func compareField(f Field, a, b Row) int {
	switch f.Kind() {
	case KindTime:
		at, aok := a.Time(f)
		bt, bok := b.Time(f)
		switch {
		case !aok && !bok:
			return 0
		case !aok:
			return 1
		case !bok:
			return -1
		}
		return at.Compare(bt)
	case KindBool:
		ab, bb := a.Bool(f), b.Bool(f)
		switch {
		case ab == bb:
			return 0
		case !ab:
			return -1
		}
		return 1
	default:
		return strings.Compare(a.String(f), b.String(f))
	}
}

// After is the keyset predicate selecting rows strictly after cursor in o.
// It is the disjunction, over each key i, of equality on keys before i and
// "later than cursor" on key i.
func (o Ordering) After(cursor Row) Predicate {
	terms := make([]Predicate, 0, len(o.keys))
	for i, k := range o.keys {
		later := laterThan(k, cursor)
		if later == nil {
			continue
		}
		eqs := make([]Predicate, 0, i+1)
		for _, prev := range o.keys[:i] {
			eqs = append(eqs, equalTo(prev, cursor))
		}
		terms = append(terms, And(append(eqs, later)...))
	}
	return Or(terms...)
}

func equalTo(k Key, cursor Row) Predicate {
	if k.Field.Kind() == KindTime {
		v, ok := cursor.Time(k.Field)
		if !ok {
			return IsNull{Field: k.Field}
		}
		return Compare{Field: k.Field, Op: OpEq, Value: v}
	}
	return Compare{Field: k.Field, Op: OpEq, Value: cursor.String(k.Field)}
}

// laterThan returns nil when no value can follow the cursor on this key.
func laterThan(k Key, cursor Row) Predicate {
	if k.Field.Kind() != KindTime {
		op := OpGt
		if k.Direction == Desc {
			op = OpLt
		}
		return Compare{Field: k.Field, Op: op, Value: cursor.String(k.Field)}
	}

	v, ok := cursor.Time(k.Field)
	if k.Direction == Asc {
		if !ok {
			return nil
		}
		gt := Compare{Field: k.Field, Op: OpGt, Value: v}
		if k.Field.Nullable() {
			return Or(gt, IsNull{Field: k.Field})
		}
		return gt
	}
	if !ok {
		return IsNull{Field: k.Field, Not: true}
	}
	return Compare{Field: k.Field, Op: OpLt, Value: v}
}

package query

import (
	"fmt"
	"strings"
	"time"
)

// Predicate is a compiled, backend-neutral filter.
type Predicate interface {
	Matches(r Row) bool
	// String is a canonical fingerprint; equal predicates print equally.
	String() string
	predicate()
}

type matchAll struct{}
type matchNone struct{}

var (
	MatchAll  Predicate = matchAll{}
	MatchNone Predicate = matchNone{}
)

func (matchAll) Matches(Row) bool  { return true }
func (matchAll) String() string    { return "true" }
func (matchAll) predicate()        {}
func (matchNone) Matches(Row) bool { return false }
func (matchNone) String() string   { return "false" }
func (matchNone) predicate()       {}

// BoolEq matches rows whose boolean field equals Value.
type BoolEq struct {
	Field Field
	Value bool
}

func (p BoolEq) Matches(r Row) bool { return r.Bool(p.Field) == p.Value }
func (p BoolEq) String() string     { return fmt.Sprintf("%s=%t", p.Field, p.Value) }
func (BoolEq) predicate()           {}

// StringEq matches rows whose string field equals Value.
type StringEq struct {
	Field Field
	Value string
}

func (p StringEq) Matches(r Row) bool { return r.String(p.Field) == p.Value }
func (p StringEq) String() string     { return fmt.Sprintf("%s=%q", p.Field, p.Value) }
func (StringEq) predicate()           {}

// TimeRange is an inclusive range; a nil bound is open. NULL never matches.
type TimeRange struct {
	Field Field
	Gte   *time.Time
	Lte   *time.Time
}

func (p TimeRange) Matches(r Row) bool {
	v, ok := r.Time(p.Field)
	if !ok {
		return false
	}
	if p.Gte != nil && v.Before(*p.Gte) {
		return false
	}
	if p.Lte != nil && v.After(*p.Lte) {
		return false
	}
	return true
}

func (p TimeRange) String() string {
	var parts []string
	if p.Gte != nil {
		parts = append(parts, fmt.Sprintf("%s>=%s", p.Field, stamp(*p.Gte)))
	}
	if p.Lte != nil {
		parts = append(parts, fmt.Sprintf("%s<=%s", p.Field, stamp(*p.Lte)))
	}
	if len(parts) == 0 {
		return fmt.Sprintf("%s!=null", p.Field)
	}
	return strings.Join(parts, "&")
}

func (TimeRange) predicate() {}

// Op is a comparison operator used by Compare.
type Op string

const (
	OpEq Op = "="
	OpGt Op = ">"
	OpLt Op = "<"
)

// Compare matches rows where field Op Value holds. Value is a time.Time for
// time fields and a string otherwise. NULL never matches.
type Compare struct {
	Field Field
	Op    Op
	Value any
}

func (p Compare) Matches(r Row) bool {
	var c int
	switch p.Field.Kind() {
	case KindTime:
		v, ok := r.Time(p.Field)
		want, isTime := p.Value.(time.Time)
		if !ok || !isTime {
			return false
		}
		c = v.Compare(want)
	case KindString:
		want, _ := p.Value.(string)
		c = strings.Compare(r.String(p.Field), want)
	default:
		return false
	}
	switch p.Op {
	case OpEq:
		return c == 0
	case OpGt:
		return c > 0
	case OpLt:
		return c < 0
	}
	return false
}

func (p Compare) String() string {
	if t, ok := p.Value.(time.Time); ok {
		return fmt.Sprintf("%s%s%s", p.Field, p.Op, stamp(t))
	}
	return fmt.Sprintf("%s%s%q", p.Field, p.Op, p.Value)
}

func (Compare) predicate() {}

// IsNull matches rows whose nullable field is NULL, or not NULL when Not is set.
type IsNull struct {
	Field Field
	Not   bool
}

func (p IsNull) Matches(r Row) bool {
	_, ok := r.Time(p.Field)
	return ok == p.Not
}

func (p IsNull) String() string {
	if p.Not {
		return fmt.Sprintf("%s!=null", p.Field)
	}
	return fmt.Sprintf("%s=null", p.Field)
}

func (IsNull) predicate() {}

// AllOf is a conjunction. Build it with And.
type AllOf struct{ Terms []Predicate }

func (p AllOf) Matches(r Row) bool {
	for _, t := range p.Terms {
		if !t.Matches(r) {
			return false
		}
	}
	return true
}

func (p AllOf) String() string { return "and(" + joinTerms(p.Terms) + ")" }
func (AllOf) predicate()       {}

// AnyOf is a disjunction. Build it with Or.
type AnyOf struct{ Terms []Predicate }

func (p AnyOf) Matches(r Row) bool {
	for _, t := range p.Terms {
		if t.Matches(r) {
			return true
		}
	}
	return false
}

func (p AnyOf) String() string { return "or(" + joinTerms(p.Terms) + ")" }
func (AnyOf) predicate()       {}

// And conjoins ps. MatchAll terms are dropped, any MatchNone term collapses
// the result, nested conjunctions are flattened and no terms yields MatchAll.
func And(ps ...Predicate) Predicate {
	terms := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		switch v := p.(type) {
		case nil, matchAll:
		case matchNone:
			return MatchNone
		case AllOf:
			terms = append(terms, v.Terms...)
		default:
			terms = append(terms, p)
		}
	}
	switch len(terms) {
	case 0:
		return MatchAll
	case 1:
		return terms[0]
	}
	return AllOf{Terms: terms}
}

// Or disjoins ps. MatchNone terms are dropped, any MatchAll term collapses
// the result, nested disjunctions are flattened and no terms yields MatchNone.
func Or(ps ...Predicate) Predicate {
	terms := make([]Predicate, 0, len(ps))
	for _, p := range ps {
		switch v := p.(type) {
		case nil, matchNone:
		case matchAll:
			return MatchAll
		case AnyOf:
			terms = append(terms, v.Terms...)
		default:
			terms = append(terms, p)
		}
	}
	switch len(terms) {
	case 0:
		return MatchNone
	case 1:
		return terms[0]
	}
	return AnyOf{Terms: terms}
}

func joinTerms(ps []Predicate) string {
	s := make([]string, len(ps))
	for i, p := range ps {
		s[i] = p.String()
	}
	return strings.Join(s, ",")
}

func stamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

package query

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SQLiteTimeLayout is fixed width so lexical order equals chronological order.
const SQLiteTimeLayout = "2006-01-02T15:04:05.000000Z"

// Dialect renders predicates and orderings as SQL for one backend.
type Dialect struct {
	name      string
	numbered  bool
	forUpdate bool
	textTimes bool
	intBools  bool
}

var (
	// Postgres uses $n placeholders, native booleans and timestamptz values.
	Postgres = Dialect{name: "postgres", numbered: true, forUpdate: true}
	// SQLite uses ? placeholders, 0/1 booleans and SQLiteTimeLayout text.
	// Writers are serialized by the engine, so FOR UPDATE is omitted.
	SQLite = Dialect{name: "sqlite", textTimes: true, intBools: true}
)

func (d Dialect) String() string { return d.name }

// TimeArg converts t to the driver value stored in time columns.
func (d Dialect) TimeArg(t time.Time) any {
	if d.textTimes {
		return t.UTC().Format(SQLiteTimeLayout)
	}
	return t.UTC()
}

// BoolArg converts b to the driver value stored in boolean columns.
func (d Dialect) BoolArg(b bool) any {
	if d.intBools {
		if b {
			return 1
		}
		return 0
	}
	return b
}

// Args accumulates positional arguments and hands out placeholders.
type Args struct {
	d    Dialect
	vals []any
}

func (d Dialect) NewArgs() *Args { return &Args{d: d} }

// Add appends v and returns its placeholder.
func (a *Args) Add(v any) string {
	a.vals = append(a.vals, v)
	if a.d.numbered {
		return "$" + strconv.Itoa(len(a.vals))
	}
	return "?"
}

func (a *Args) Values() []any { return a.vals }

// Table maps fields to column names.
type Table struct {
	Name    string
	Columns map[Field]string
	// Select lists the columns read by BuildSelect, in scan order.
	Select []string
}

func (t Table) column(f Field) (string, error) {
	c, ok := t.Columns[f]
	if !ok {
		return "", fmt.Errorf("table %s has no column for field %q", t.Name, f)
	}
	return c, nil
}

// RenderWhere renders p as a boolean SQL expression.
func (d Dialect) RenderWhere(t Table, p Predicate, a *Args) (string, error) {
	switch v := p.(type) {
	case nil, matchAll:
		return "1=1", nil
	case matchNone:
		return "1=0", nil
	case BoolEq:
		col, err := t.column(v.Field)
		if err != nil {
			return "", err
		}
		return col + " = " + a.Add(d.BoolArg(v.Value)), nil
	case StringEq:
		col, err := t.column(v.Field)
		if err != nil {
			return "", err
		}
		return col + " = " + a.Add(v.Value), nil
	case TimeRange:
		col, err := t.column(v.Field)
		if err != nil {
			return "", err
		}
		var parts []string
		if v.Gte != nil {
			parts = append(parts, col+" >= "+a.Add(d.TimeArg(*v.Gte)))
		}
		if v.Lte != nil {
			parts = append(parts, col+" <= "+a.Add(d.TimeArg(*v.Lte)))
		}
		switch len(parts) {
		case 0:
			return col + " IS NOT NULL", nil
		case 1:
			return parts[0], nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", nil
	case Compare:
		col, err := t.column(v.Field)
		if err != nil {
			return "", err
		}
		val := v.Value
		if tm, ok := timeOf(val); ok {
			val = d.TimeArg(tm)
		}
		return col + " " + string(v.Op) + " " + a.Add(val), nil
	case IsNull:
		col, err := t.column(v.Field)
		if err != nil {
			return "", err
		}
		if v.Not {
			return col + " IS NOT NULL", nil
		}
		return col + " IS NULL", nil
	case AllOf:
		return d.renderTerms(t, v.Terms, " AND ", a)
	case AnyOf:
		return d.renderTerms(t, v.Terms, " OR ", a)
	}
	return "", fmt.Errorf("unsupported predicate %T", p)
}

func (d Dialect) renderTerms(t Table, terms []Predicate, sep string, a *Args) (string, error) {
	s, err := d.joinTerms(t, terms, sep, a)
	if err != nil {
		return "", err
	}
	return "(" + s + ")", nil
}

func (d Dialect) joinTerms(t Table, terms []Predicate, sep string, a *Args) (string, error) {
	parts := make([]string, len(terms))
	for i, term := range terms {
		s, err := d.RenderWhere(t, term, a)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, sep), nil
}

// RenderOrderBy renders o. Nullable columns get explicit NULL placement so
// every backend sorts NULL as the largest value.
func (d Dialect) RenderOrderBy(t Table, o Ordering) (string, error) {
	parts := make([]string, 0, len(o.keys))
	for _, k := range o.keys {
		col, err := t.column(k.Field)
		if err != nil {
			return "", err
		}
		s := col + " " + strings.ToUpper(string(k.Direction))
		if k.Field.Nullable() {
			if k.Direction == Asc {
				s += " NULLS LAST"
			} else {
				s += " NULLS FIRST"
			}
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, ", "), nil
}

// RenderAfter renders the keyset predicate positioning rows after cursor.
func (d Dialect) RenderAfter(t Table, o Ordering, cursor Row, a *Args) (string, error) {
	return d.RenderWhere(t, o.After(cursor), a)
}

// BuildSelect renders q. cursor must be the row named by q.After, or nil when
// q.After is empty.
func (d Dialect) BuildSelect(t Table, q Query, cursor Row) (string, []any, error) {
	a := d.NewArgs()
	where := q.Where
	if cursor != nil {
		where = And(where, q.OrderBy.After(cursor))
	}

	var b strings.Builder
	b.WriteString("SELECT ")
	b.WriteString(strings.Join(t.Select, ", "))
	b.WriteString(" FROM ")
	b.WriteString(t.Name)
	if err := d.writeWhere(&b, t, where, a); err != nil {
		return "", nil, err
	}
	if len(q.OrderBy.keys) > 0 {
		order, err := d.RenderOrderBy(t, q.OrderBy)
		if err != nil {
			return "", nil, err
		}
		b.WriteString(" ORDER BY ")
		b.WriteString(order)
	}
	if q.Limit > 0 {
		b.WriteString(" LIMIT ")
		b.WriteString(a.Add(q.Limit))
	}
	if q.Offset > 0 {
		if q.Limit <= 0 {
			// SQLite requires LIMIT before OFFSET; -1 means unbounded there
			// and Postgres accepts LIMIT ALL.
			if d.numbered {
				b.WriteString(" LIMIT ALL")
			} else {
				b.WriteString(" LIMIT -1")
			}
		}
		b.WriteString(" OFFSET ")
		b.WriteString(a.Add(q.Offset))
	}
	if q.ForUpdate && d.forUpdate {
		b.WriteString(" FOR UPDATE")
	}
	return b.String(), a.Values(), nil
}

// BuildCount renders a COUNT(*) over the rows matching where.
func (d Dialect) BuildCount(t Table, where Predicate) (string, []any, error) {
	a := d.NewArgs()
	var b strings.Builder
	b.WriteString("SELECT COUNT(*) FROM ")
	b.WriteString(t.Name)
	if err := d.writeWhere(&b, t, where, a); err != nil {
		return "", nil, err
	}
	return b.String(), a.Values(), nil
}

func (d Dialect) writeWhere(b *strings.Builder, t Table, where Predicate, a *Args) error {
	if where == nil || where == MatchAll {
		return nil
	}
	var (
		s   string
		err error
	)
	switch v := where.(type) {
	case AllOf:
		s, err = d.joinTerms(t, v.Terms, " AND ", a)
	case AnyOf:
		s, err = d.joinTerms(t, v.Terms, " OR ", a)
	default:
		s, err = d.RenderWhere(t, where, a)
	}
	if err != nil {
		return err
	}
	b.WriteString(" WHERE ")
	b.WriteString(s)
	return nil
}

func timeOf(v any) (time.Time, bool) {
	t, ok := v.(time.Time)
	return t, ok
}

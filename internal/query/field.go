// Package query compiles caller-supplied filters, sort orders and page requests
// into a backend-neutral query descriptor, and evaluates or renders it.
//
// The same Predicate and Ordering values drive the in-memory store (via
// Matches/Compare) and the SQL stores (via Dialect rendering), so both backends
// agree on filtering, NULL placement and keyset positioning.
package query

import "time"

// Field names a queryable attribute of a user record.
type Field string

const (
	FieldID          Field = "id"
	FieldProvider    Field = "provider"
	FieldIdentityKey Field = "identityKey"
	FieldIsDeleted   Field = "isDeleted"
	FieldCreatedAt   Field = "createdAt"
	FieldDeletedAt   Field = "deletedAt"
)

// Kind is the value type of a field.
type Kind int

const (
	KindString Kind = iota
	KindBool
	KindTime
)

func (f Field) Kind() Kind {
	switch f {
	case FieldIsDeleted:
		return KindBool
	case FieldCreatedAt, FieldDeletedAt:
		return KindTime
	default:
		return KindString
	}
}

// Nullable reports whether the field may hold NULL.
func (f Field) Nullable() bool {
	return f == FieldDeletedAt
}

func (f Field) Valid() bool {
	switch f {
	case FieldID, FieldProvider, FieldIdentityKey, FieldIsDeleted, FieldCreatedAt, FieldDeletedAt:
		return true
	}
	return false
}

// Sortable reports whether callers may order by the field.
func (f Field) Sortable() bool {
	return f == FieldCreatedAt || f == FieldDeletedAt
}

// Row is a record the in-memory evaluator can inspect.
type Row interface {
	Bool(f Field) bool
	// Time returns false when the value is NULL.
	Time(f Field) (time.Time, bool)
	String(f Field) string
}

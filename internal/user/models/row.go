package models

import (
	"time"

	"github.com/changeuikim/vercel-kayce/internal/query"
)

// User satisfies query.Row so predicates and orderings can evaluate it.
var _ query.Row = (*User)(nil)

func (u *User) Bool(f query.Field) bool {
	return f == query.FieldIsDeleted && u.IsDeleted
}

func (u *User) Time(f query.Field) (time.Time, bool) {
	switch f {
	case query.FieldCreatedAt:
		return u.CreatedAt, true
	case query.FieldDeletedAt:
		if u.DeletedAt == nil {
			return time.Time{}, false
		}
		return *u.DeletedAt, true
	}
	return time.Time{}, false
}

func (u *User) String(f query.Field) string {
	switch f {
	case query.FieldID:
		return u.ID.String()
	case query.FieldProvider:
		return string(u.Provider)
	case query.FieldIdentityKey:
		return string(u.IdentityKey)
	}
	return ""
}

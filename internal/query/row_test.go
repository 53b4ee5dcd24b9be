package query

import (
	"time"
)

type testRow struct {
	id        string
	deleted   bool
	createdAt time.Time
	deletedAt *time.Time
}

func (r testRow) Bool(f Field) bool {
	return f == FieldIsDeleted && r.deleted
}

func (r testRow) Time(f Field) (time.Time, bool) {
	switch f {
	case FieldCreatedAt:
		return r.createdAt, true
	case FieldDeletedAt:
		if r.deletedAt == nil {
			return time.Time{}, false
		}
		return *r.deletedAt, true
	}
	return time.Time{}, false
}

func (r testRow) String(f Field) string {
	if f == FieldID {
		return r.id
	}
	return ""
}

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func at(minutes int) time.Time { return base.Add(time.Duration(minutes) * time.Minute) }

func ptr[T any](v T) *T { return &v }

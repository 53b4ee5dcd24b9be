// Package domain holds typed identifiers shared across layers.
package domain

import (
	"github.com/google/uuid"

	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// UserID identifies a user record. It is opaque to callers and stable for
// the record's lifetime, including across soft delete and restore.
type UserID uuid.UUID

// NewUserID returns a fresh random identifier.
func NewUserID() UserID {
	return UserID(uuid.New())
}

// ParseUserID parses s and rejects malformed or nil UUIDs.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	if err != nil {
		return UserID{}, err
	}
	return UserID(u), nil
}

func (id UserID) String() string {
	return uuid.UUID(id).String()
}

func (id UserID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText renders the canonical UUID form so IDs serialize as strings.
func (id UserID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *UserID) UnmarshalText(b []byte) error {
	parsed, err := ParseUserID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

func parseUUID(s, label string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeValidation, "invalid "+label)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeValidation, label+" must not be nil")
	}
	return u, nil
}

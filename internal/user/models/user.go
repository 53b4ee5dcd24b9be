package models

import (
	"time"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
	dErrors "github.com/changeuikim/vercel-kayce/pkg/domain-errors"
)

// State is the lifecycle state of a user.
type State string

const (
	StateActive      State = "active"
	StateSoftDeleted State = "soft_deleted"
)

// CanTransitionTo reports whether next is reachable from s.
// active ↔ soft_deleted only; there is no hard-delete state.
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateActive:
		return next == StateSoftDeleted
	case StateSoftDeleted:
		return next == StateActive
	}
	return false
}

// User is a social-login account.
//
// Invariants:
//   - IsDeleted is true iff DeletedAt is non-nil
//   - At most one active user holds a given IdentityKey; soft-deleted users
//     are exempt and may share it with an active one
//   - ID, Provider, IdentityKey and CreatedAt never change after insert
//
// The raw provider identifier is never stored; IdentityKey is its digest.
type User struct {
	ID          id.UserID         `json:"id" yaml:"id"`
	Provider    identity.Provider `json:"provider" yaml:"provider"`
	IdentityKey identity.Key      `json:"-" yaml:"-"`
	IsDeleted   bool              `json:"isDeleted" yaml:"isDeleted"`
	DeletedAt   *time.Time        `json:"deletedAt" yaml:"deletedAt"`
	CreatedAt   time.Time         `json:"createdAt" yaml:"createdAt"`
}

// NewUser builds an active user. The store assigns the ID on insert.
func NewUser(provider identity.Provider, key identity.Key, now time.Time) (*User, error) {
	if !provider.Valid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown provider").WithMeta("provider", string(provider))
	}
	if key == "" {
		return nil, dErrors.New(dErrors.CodeValidation, "identity key cannot be empty")
	}
	return &User{
		Provider:    provider,
		IdentityKey: key,
		CreatedAt:   Timestamp(now),
	}, nil
}

func (u *User) State() State {
	if u.IsDeleted {
		return StateSoftDeleted
	}
	return StateActive
}

func (u *User) IsActive() bool {
	return !u.IsDeleted
}

// CanSoftDelete returns EntityNotFound unless the user is active.
func (u *User) CanSoftDelete() error {
	if !u.State().CanTransitionTo(StateSoftDeleted) {
		return u.notFound()
	}
	return nil
}

// ApplySoftDelete marks the user deleted at now.
// Call CanSoftDelete first to validate the transition.
func (u *User) ApplySoftDelete(now time.Time) {
	t := Timestamp(now)
	u.IsDeleted = true
	u.DeletedAt = &t
}

// SoftDelete validates and applies the transition in one call.
func (u *User) SoftDelete(now time.Time) error {
	if err := u.CanSoftDelete(); err != nil {
		return err
	}
	u.ApplySoftDelete(now)
	return nil
}

// CanRestore returns EntityNotFound unless the user is soft-deleted.
func (u *User) CanRestore() error {
	if !u.State().CanTransitionTo(StateActive) {
		return u.notFound()
	}
	return nil
}

// ApplyRestore returns the user to active.
// Call CanRestore first to validate the transition.
func (u *User) ApplyRestore() {
	u.IsDeleted = false
	u.DeletedAt = nil
}

// Restore validates and applies the transition in one call.
func (u *User) Restore() error {
	if err := u.CanRestore(); err != nil {
		return err
	}
	u.ApplyRestore()
	return nil
}

// Patch returns the mutable lifecycle columns of u.
func (u *User) Patch() Patch {
	return Patch{IsDeleted: u.IsDeleted, DeletedAt: u.DeletedAt}
}

// Clone returns a deep copy.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.DeletedAt != nil {
		t := *u.DeletedAt
		c.DeletedAt = &t
	}
	return &c
}

func (u *User) notFound() error {
	return dErrors.New(dErrors.CodeEntityNotFound, "").WithMeta("id", u.ID.String())
}

// Patch is the set of columns a lifecycle transition writes.
type Patch struct {
	IsDeleted bool
	DeletedAt *time.Time
}

// Apply copies p onto u.
func (p Patch) Apply(u *User) {
	u.IsDeleted = p.IsDeleted
	if p.DeletedAt == nil {
		u.DeletedAt = nil
		return
	}
	t := *p.DeletedAt
	u.DeletedAt = &t
}

// Timestamp normalizes t to the precision every store keeps.
func Timestamp(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

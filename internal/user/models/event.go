package models

import (
	"time"

	"github.com/changeuikim/vercel-kayce/internal/identity"
	id "github.com/changeuikim/vercel-kayce/pkg/domain"
)

// EventType names a committed lifecycle transition.
type EventType string

const (
	EventUserCreated     EventType = "user.created"
	EventUserSoftDeleted EventType = "user.soft_deleted"
	EventUserRestored    EventType = "user.restored"
)

// Event is published after a lifecycle transition commits. It carries no
// identity material.
type Event struct {
	Type       EventType         `json:"type"`
	UserID     id.UserID         `json:"userId"`
	Provider   identity.Provider `json:"provider"`
	OccurredAt time.Time         `json:"occurredAt"`
	RequestID  string            `json:"requestId,omitempty"`
}
